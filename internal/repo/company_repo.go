package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/screenfleet/server/internal/model"
)

// ErrCompanyNotFound is returned when a company does not exist.
var ErrCompanyNotFound = fmt.Errorf("company not found")

// CompanyRepo defines the interface for company repository operations
type CompanyRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Company, error)
	GetByCode(ctx context.Context, orgCode string) (model.Company, error)
}

type companyRepo struct {
	db *sql.DB
}

// NewCompanyRepo creates a new CompanyRepo instance
func NewCompanyRepo(db *sql.DB) CompanyRepo {
	return &companyRepo{db: db}
}

// GetByID retrieves a company by ID
func (r *companyRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Company, error) {
	return r.get(ctx, `SELECT id, name, org_code, created_at FROM companies WHERE id = $1`, id)
}

// GetByCode retrieves a company by its organization code
func (r *companyRepo) GetByCode(ctx context.Context, orgCode string) (model.Company, error) {
	return r.get(ctx, `SELECT id, name, org_code, created_at FROM companies WHERE org_code = $1`, orgCode)
}

func (r *companyRepo) get(ctx context.Context, query string, arg interface{}) (model.Company, error) {
	var c model.Company
	var idStr string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&idStr, &c.Name, &c.OrgCode, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Company{}, ErrCompanyNotFound
		}
		return model.Company{}, fmt.Errorf("query company: %w", err)
	}
	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Company{}, fmt.Errorf("parse company ID: %w", err)
	}
	return c, nil
}
