package directory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDirectory_Employees(t *testing.T) {
	ctx := context.Background()
	dir := NewInMemoryDirectory()
	companyID := uuid.New()

	t.Run("unknown employee returns nil without error", func(t *testing.T) {
		info, err := dir.GetEmployee(ctx, companyID, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("put applies workday and timezone defaults", func(t *testing.T) {
		employeeID := uuid.New()
		dir.PutEmployee(EmployeeInfo{
			ID:        employeeID,
			CompanyID: companyID,
			FirstName: "Ana",
			LastName:  "Moreno",
		})

		info, err := dir.GetEmployee(ctx, companyID, employeeID)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, int64(DefaultWorkdayMinutes), info.WorkdayMinutes)
		assert.Equal(t, "UTC", info.Timezone)
	})

	t.Run("explicit schedule is preserved", func(t *testing.T) {
		employeeID := uuid.New()
		dir.PutEmployee(EmployeeInfo{
			ID:             employeeID,
			CompanyID:      companyID,
			LastName:       "Klein",
			WorkdayMinutes: 360,
			Timezone:       "Europe/Berlin",
		})

		info, err := dir.GetEmployee(ctx, companyID, employeeID)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, int64(360), info.WorkdayMinutes)
		assert.Equal(t, "Europe/Berlin", info.Timezone)
	})

	t.Run("employee of another company is not visible", func(t *testing.T) {
		employeeID := uuid.New()
		dir.PutEmployee(EmployeeInfo{ID: employeeID, CompanyID: uuid.New(), LastName: "Foreign"})

		info, err := dir.GetEmployee(ctx, companyID, employeeID)
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		employeeID := uuid.New()
		dir.PutEmployee(EmployeeInfo{ID: employeeID, CompanyID: companyID, LastName: "Sato"})

		first, err := dir.GetEmployee(ctx, companyID, employeeID)
		require.NoError(t, err)
		first.WorkdayMinutes = 1

		second, err := dir.GetEmployee(ctx, companyID, employeeID)
		require.NoError(t, err)
		assert.Equal(t, int64(DefaultWorkdayMinutes), second.WorkdayMinutes)
	})
}

func TestInMemoryDirectory_ListEmployees(t *testing.T) {
	ctx := context.Background()
	dir := NewInMemoryDirectory()
	companyID := uuid.New()

	dir.PutEmployee(EmployeeInfo{ID: uuid.New(), CompanyID: companyID, LastName: "Zimmer"})
	dir.PutEmployee(EmployeeInfo{ID: uuid.New(), CompanyID: companyID, LastName: "Alvarez"})
	dir.PutEmployee(EmployeeInfo{ID: uuid.New(), CompanyID: companyID, LastName: "Moreau"})
	dir.PutEmployee(EmployeeInfo{ID: uuid.New(), CompanyID: uuid.New(), LastName: "Aardvark"})

	employees, err := dir.ListEmployees(ctx, companyID)
	require.NoError(t, err)
	require.Len(t, employees, 3)
	assert.Equal(t, "Alvarez", employees[0].LastName)
	assert.Equal(t, "Moreau", employees[1].LastName)
	assert.Equal(t, "Zimmer", employees[2].LastName)
}

func TestInMemoryDirectory_Companies(t *testing.T) {
	ctx := context.Background()
	dir := NewInMemoryDirectory()

	t.Run("unknown company returns nil without error", func(t *testing.T) {
		info, err := dir.GetCompany(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("put applies defaults", func(t *testing.T) {
		companyID := uuid.New()
		dir.PutCompany(CompanyInfo{ID: companyID, Name: "Acme"})

		info, err := dir.GetCompany(ctx, companyID)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, int64(DefaultWorkdayMinutes), info.DefaultWorkdayMinutes)
		assert.Equal(t, "UTC", info.Timezone)
	})
}
