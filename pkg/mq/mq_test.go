package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDLQName(t *testing.T) {
	assert.Equal(t, "alert.created.dlq", DLQName(RoutingKeyAlertCreated))
	assert.Equal(t, "notification.fanout.dlq", DLQName(RoutingKeyNotificationFanout))
}
