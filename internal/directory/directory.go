// Package directory defines the read interfaces for the employee and
// company source systems. The core services depend only on these
// interfaces; implementations are injected at construction.
package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultWorkdayMinutes is assumed when an employee record does not
// carry an explicit workday length.
const DefaultWorkdayMinutes = 480

// EmployeeInfo is the employee metadata the service needs.
type EmployeeInfo struct {
	ID             uuid.UUID  `json:"id"`
	CompanyID      uuid.UUID  `json:"company_id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email"`
	PayType        string     `json:"pay_type"`
	WorkdayMinutes int64      `json:"workday_minutes"`
	Timezone       string     `json:"timezone"`
	HireDate       *time.Time `json:"hire_date,omitempty"`
}

// CompanyInfo is the company metadata the service needs.
type CompanyInfo struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	Timezone              string    `json:"timezone"`
	DefaultWorkdayMinutes int64     `json:"default_workday_minutes"`
}

// EmployeeDirectory resolves employee metadata. Implementations return
// (nil, nil) when the employee is unknown.
type EmployeeDirectory interface {
	GetEmployee(ctx context.Context, companyID, employeeID uuid.UUID) (*EmployeeInfo, error)
	ListEmployees(ctx context.Context, companyID uuid.UUID) ([]*EmployeeInfo, error)
}

// CompanyDirectory resolves company metadata. Implementations return
// (nil, nil) when the company is unknown.
type CompanyDirectory interface {
	GetCompany(ctx context.Context, companyID uuid.UUID) (*CompanyInfo, error)
}
