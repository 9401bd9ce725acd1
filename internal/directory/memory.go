package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryDirectory is a mutable in-process implementation of both
// directory interfaces, used for development, tests, and the stub
// employee endpoints.
type InMemoryDirectory struct {
	mu        sync.RWMutex
	employees map[uuid.UUID]*EmployeeInfo
	companies map[uuid.UUID]*CompanyInfo
}

// NewInMemoryDirectory creates an empty in-memory directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		employees: make(map[uuid.UUID]*EmployeeInfo),
		companies: make(map[uuid.UUID]*CompanyInfo),
	}
}

// PutEmployee upserts an employee record.
func (d *InMemoryDirectory) PutEmployee(info EmployeeInfo) {
	if info.WorkdayMinutes <= 0 {
		info.WorkdayMinutes = DefaultWorkdayMinutes
	}
	if info.Timezone == "" {
		info.Timezone = "UTC"
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[info.ID] = &info
}

// PutCompany upserts a company record.
func (d *InMemoryDirectory) PutCompany(info CompanyInfo) {
	if info.DefaultWorkdayMinutes <= 0 {
		info.DefaultWorkdayMinutes = DefaultWorkdayMinutes
	}
	if info.Timezone == "" {
		info.Timezone = "UTC"
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.companies[info.ID] = &info
}

// GetEmployee returns the employee record, or nil when unknown or
// belonging to another company.
func (d *InMemoryDirectory) GetEmployee(_ context.Context, companyID, employeeID uuid.UUID) (*EmployeeInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info, ok := d.employees[employeeID]
	if !ok || info.CompanyID != companyID {
		return nil, nil
	}
	copied := *info
	return &copied, nil
}

// ListEmployees returns a company's employee records sorted by last name.
func (d *InMemoryDirectory) ListEmployees(_ context.Context, companyID uuid.UUID) ([]*EmployeeInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := []*EmployeeInfo{}
	for _, info := range d.employees {
		if info.CompanyID == companyID {
			copied := *info
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastName != result[j].LastName {
			return result[i].LastName < result[j].LastName
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// GetCompany returns the company record, or nil when unknown.
func (d *InMemoryDirectory) GetCompany(_ context.Context, companyID uuid.UUID) (*CompanyInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info, ok := d.companies[companyID]
	if !ok {
		return nil, nil
	}
	copied := *info
	return &copied, nil
}
