package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"luxuryestates/internal/model"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 100
)

const propertySelect = `
        SELECT p.id, p.title, p.price, p.description, p.location, p.bedrooms, p.bathrooms,
               p.sqft, p.category, p.link, p.images, p.virtual_tour, p.owner_id,
               COALESCE(u.name, ''), p.created_at
        FROM properties p
        LEFT JOIN users u ON u.id = p.owner_id
`

type PropertyRepository struct {
	db *pgxpool.Pool
}

func NewPropertyRepository(db *pgxpool.Pool) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// Create 写入房源；图片必须已经上传完成
func (r *PropertyRepository) Create(ctx context.Context, p *model.Property) error {
	if p.Images == nil {
		p.Images = []model.Image{}
	}
	query := `
        INSERT INTO properties (title, price, description, location, bedrooms, bathrooms, sqft,
                                category, link, images, virtual_tour, owner_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query,
		p.Title, p.Price, p.Description, p.Location, p.Bedrooms, p.Bathrooms, p.Sqft,
		string(p.Category), p.Link, p.Images, p.VirtualTour, p.OwnerID,
	).Scan(&p.ID, &p.CreatedAt)
	if isForeignKeyViolation(err) {
		return model.NewValidationError("owner", "must reference an existing user")
	}
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	return nil
}

func (r *PropertyRepository) GetByID(ctx context.Context, id int64) (*model.Property, error) {
	p, err := scanProperty(r.db.QueryRow(ctx, propertySelect+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// Update 覆盖全部可变字段
func (r *PropertyRepository) Update(ctx context.Context, p *model.Property) error {
	if p.Images == nil {
		p.Images = []model.Image{}
	}
	tag, err := r.db.Exec(ctx, `
        UPDATE properties
        SET title = $2, price = $3, description = $4, location = $5, bedrooms = $6,
            bathrooms = $7, sqft = $8, category = $9, link = $10, images = $11, virtual_tour = $12
        WHERE id = $1
    `,
		p.ID, p.Title, p.Price, p.Description, p.Location, p.Bedrooms,
		p.Bathrooms, p.Sqft, string(p.Category), p.Link, p.Images, p.VirtualTour,
	)
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Delete 删除房源并返回其文件，评论由外键级联删除
func (r *PropertyRepository) Delete(ctx context.Context, id int64) ([]model.Image, error) {
	var images []model.Image
	var tour *model.Image
	err := r.db.QueryRow(ctx, `
        DELETE FROM properties WHERE id = $1
        RETURNING images, virtual_tour
    `, id).Scan(&images, &tour)
	if err != nil {
		return nil, notFound(err)
	}
	if tour != nil {
		images = append(images, *tour)
	}
	return images, nil
}

// FindRecentByCategory 按创建时间倒序返回最多 limit 条
func (r *PropertyRepository) FindRecentByCategory(ctx context.Context, category model.Category, limit int) ([]model.Property, error) {
	rows, err := r.db.Query(ctx, propertySelect+`
        WHERE p.category = $1
        ORDER BY p.created_at DESC, p.id DESC
        LIMIT $2
    `, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent properties: %w", err)
	}
	return collectProperties(rows)
}

func (r *PropertyRepository) Search(ctx context.Context, filter model.PropertyFilter) ([]model.Property, error) {
	query, args := buildSearchQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search properties: %w", err)
	}
	return collectProperties(rows)
}

func buildSearchQuery(f model.PropertyFilter) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if loc := strings.TrimSpace(f.Location); loc != "" {
		conds = append(conds, fmt.Sprintf(`p.location ILIKE '%%' || %s || '%%'`, arg(escapeLike(loc))))
	}
	if f.Category != "" {
		conds = append(conds, "p.category = "+arg(string(f.Category)))
	}
	if min, max, ok := f.PriceRange.Bounds(); ok {
		conds = append(conds, "p.price >= "+arg(min))
		if max > 0 {
			conds = append(conds, "p.price <= "+arg(max))
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	var b strings.Builder
	b.WriteString(propertySelect)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY p.created_at DESC, p.id DESC LIMIT ")
	b.WriteString(arg(limit))
	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanProperty(row pgx.Row) (*model.Property, error) {
	var p model.Property
	var category string
	err := row.Scan(
		&p.ID, &p.Title, &p.Price, &p.Description, &p.Location, &p.Bedrooms, &p.Bathrooms,
		&p.Sqft, &category, &p.Link, &p.Images, &p.VirtualTour, &p.OwnerID,
		&p.OwnerName, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Category = model.Category(category)
	if p.Images == nil {
		p.Images = []model.Image{}
	}
	return &p, nil
}

func collectProperties(rows pgx.Rows) ([]model.Property, error) {
	properties, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Property, error) {
		p, err := scanProperty(row)
		if err != nil {
			return model.Property{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan properties: %w", err)
	}
	return properties, nil
}
