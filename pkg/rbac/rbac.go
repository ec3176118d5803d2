package rbac

import "slices"

// 权限常量
const (
	// 越权操作：修改或删除他人的数据
	PermissionUpdateAnyProperty = "property:update_any"
	PermissionDeleteAnyProperty = "property:delete_any"
	PermissionDeleteAnyReview   = "review:delete_any"

	// 运维操作
	PermissionReplayOutbox = "outbox:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 普通用户只能操作自己的数据，不需要额外权限
var rolePermissions = map[string][]string{
	RoleUser: {},
	RoleAdmin: {
		PermissionUpdateAnyProperty,
		PermissionDeleteAnyProperty,
		PermissionDeleteAnyReview,
		PermissionReplayOutbox,
	},
}

// NormalizeRole 未知角色按普通用户处理
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleUser
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(permissions, permission)
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID int64, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Permission: permission,
		}
	}
	return nil
}

// CanModify 资源所有者或拥有越权权限的角色可以修改
func CanModify(userID int64, role string, ownerID int64, permission string) bool {
	return userID == ownerID || HasPermission(role, permission)
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int64
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
