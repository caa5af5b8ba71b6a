package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
)

func TestCompile_EmptyWorkOrder(t *testing.T) {
	tests := []struct {
		name  string
		order *domain.WorkOrderRecord
	}{
		{
			name:  "nil order",
			order: nil,
		},
		{
			name:  "no service entries",
			order: &domain.WorkOrderRecord{Site: domain.SiteDescriptor{Name: "Wawa Store #1425"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Compile(tt.order)

			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, domain.ErrEmptyServiceList)

			var compErr *domain.CompilationError
			assert.ErrorAs(t, err, &compErr)
		})
	}
}

func TestCompile_WawaCalibration(t *testing.T) {
	// One calibration entry, no quantity, Wawa site: default 4 dispensers,
	// brand-default grade lineup, plus unmeasured, everything else measured.
	order := &domain.WorkOrderRecord{
		WorkOrderID: "WO-1001",
		Services: []domain.ServiceEntry{
			{Type: "Meter Service", Description: "AccuMeasure meter calibration"},
		},
		Site: domain.SiteDescriptor{Name: "Wawa Store #1425"},
	}

	result, err := Compile(order)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.ProcedureStandardSequential, result.ProcedureCode)
	assert.Equal(t, []int{1, 2, 3, 4}, result.UnitNumbers)
	assert.Equal(t, domain.TemplateFiveStepMeasured, result.Template)

	for _, unit := range result.UnitNumbers {
		assert.Equal(t, []string{"regular", "plus", "premium", "diesel"}, result.CategoriesByUnit[unit])
		assert.Equal(t, []string{"regular", "premium", "diesel"}, result.MeasuredByUnit[unit])
		assert.Equal(t, []string{"plus"}, result.UnmeasuredByUnit[unit])
	}

	// 4 units x (5x3 measured + 3x1 unmeasured)
	assert.Equal(t, 72, result.TotalSteps)
}

func TestCompile_ExplicitQuantity(t *testing.T) {
	order := &domain.WorkOrderRecord{
		Services: []domain.ServiceEntry{
			{Type: "Meter Service", Description: "AccuMeasure meter calibration on 8 dispensers", Quantity: 8},
		},
		Site: domain.SiteDescriptor{Name: "Wawa Store #1425"},
	}

	result, err := Compile(order)
	require.NoError(t, err)

	assert.Equal(t, domain.ProcedureStandardSequential, result.ProcedureCode)
	assert.Len(t, result.UnitNumbers, 8)
	assert.Equal(t, 144, result.TotalSteps)
}

func TestDetectProcedureCode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.ProcedureCode
	}{
		{
			name: "calibration keyword",
			text: "annual meter calibration",
			want: domain.ProcedureStandardSequential,
		},
		{
			name: "calibration wins over dispenser count",
			text: "AccuMeasure meter calibration on 8 dispensers",
			want: domain.ProcedureStandardSequential,
		},
		{
			name: "quantity style",
			text: "inspect 6 dispensers",
			want: domain.ProcedureQuantityBased,
		},
		{
			name: "specific unit numbers",
			text: "service dispensers #3 #5 #9",
			want: domain.ProcedureSpecificUnits,
		},
		{
			name: "open neck prover",
			text: "open neck prover verification",
			want: domain.ProcedureOpenNeckProver,
		},
		{
			name: "known 4-digit code token",
			text: "perform service 2861 at site",
			want: domain.ProcedureOpenNeckProver,
		},
		{
			name: "unknown 4-digit token falls back",
			text: "ticket 9999 routine visit",
			want: domain.ProcedureStandardSequential,
		},
		{
			name: "nothing matches",
			text: "routine site visit",
			want: domain.ProcedureStandardSequential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectProcedureCode(tt.text))
		})
	}
}

func TestExtractUnitCount(t *testing.T) {
	tests := []struct {
		name     string
		services []domain.ServiceEntry
		text     string
		code     domain.ProcedureCode
		want     int
	}{
		{
			name:     "explicit quantity wins",
			services: []domain.ServiceEntry{{Quantity: 8}},
			text:     "calibrate 3 dispensers",
			code:     domain.ProcedureQuantityBased,
			want:     8,
		},
		{
			name:     "quantity pattern",
			services: []domain.ServiceEntry{{}},
			text:     "inspect 6 dispensers",
			code:     domain.ProcedureQuantityBased,
			want:     6,
		},
		{
			name:     "specific units counts unique numbers",
			services: []domain.ServiceEntry{{}},
			text:     "dispensers #3 #5 #9 #3",
			code:     domain.ProcedureSpecificUnits,
			want:     3,
		},
		{
			name:     "bare in-range number",
			services: []domain.ServiceEntry{{}},
			text:     "site has 12 positions",
			code:     domain.ProcedureStandardSequential,
			want:     12,
		},
		{
			name:     "out-of-range number ignored",
			services: []domain.ServiceEntry{{}},
			text:     "ticket 9999",
			code:     domain.ProcedureStandardSequential,
			want:     defaultUnitCount,
		},
		{
			name:     "nothing found defaults to 4",
			services: []domain.ServiceEntry{{}},
			text:     "meter calibration",
			code:     domain.ProcedureStandardSequential,
			want:     defaultUnitCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractUnitCount(tt.services, tt.text, tt.code))
		})
	}
}

func TestCompile_CategoryOverrides(t *testing.T) {
	order := &domain.WorkOrderRecord{
		Services: []domain.ServiceEntry{
			{Description: "meter calibration", Quantity: 2},
		},
		Site: domain.SiteDescriptor{Name: "Unbranded Fuel Stop"},
		CategoryOverrides: map[int][]string{
			2: {"regular unleaded", "diesel fuel"},
		},
	}

	result, err := Compile(order)
	require.NoError(t, err)

	// Unit 1 keeps the generic default; unit 2 takes the override.
	assert.Equal(t, genericDefaultCategories, result.CategoriesByUnit[1])
	assert.Equal(t, []string{"regular unleaded", "diesel fuel"}, result.CategoriesByUnit[2])
	assert.Equal(t, []string{"regular unleaded", "diesel fuel"}, result.MeasuredByUnit[2])
	assert.Empty(t, result.UnmeasuredByUnit[2])
}

func TestIsMeasured(t *testing.T) {
	tests := []struct {
		name     string
		category string
		unitList []string
		want     bool
	}{
		{
			name:     "compound always-measured",
			category: "Regular Unleaded",
			unitList: []string{"Regular Unleaded"},
			want:     true,
		},
		{
			name:     "never-measured plus",
			category: "plus",
			unitList: []string{"regular", "plus"},
			want:     false,
		},
		{
			name:     "bare premium defaults to measured even with super present",
			category: "premium",
			unitList: []string{"premium", "super unleaded"},
			want:     true,
		},
		{
			name:     "premium compound reclassified when super variant present",
			category: "premium unleaded",
			unitList: []string{"premium unleaded", "super unleaded"},
			want:     false,
		},
		{
			name:     "premium compound stays measured without super variant",
			category: "premium unleaded",
			unitList: []string{"regular unleaded", "premium unleaded"},
			want:     true,
		},
		{
			name:     "unknown name defaults to measured",
			category: "E85",
			unitList: []string{"E85"},
			want:     true,
		},
		{
			name:     "whitespace and case normalized",
			category: "  KEROSENE  ",
			unitList: []string{"kerosene"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isMeasured(tt.category, tt.unitList))
		})
	}
}

func TestCompile_PartitionProperty(t *testing.T) {
	orders := []*domain.WorkOrderRecord{
		{
			Services: []domain.ServiceEntry{{Description: "meter calibration"}},
			Site:     domain.SiteDescriptor{Name: "Wawa Store #1425"},
		},
		{
			Services: []domain.ServiceEntry{{Description: "inspect 6 dispensers"}},
			Site:     domain.SiteDescriptor{Name: "Sheetz #511"},
		},
		{
			Services: []domain.ServiceEntry{{Description: "dispensers #2 #7"}},
			Site:     domain.SiteDescriptor{Name: "Independent Station"},
			CategoryOverrides: map[int][]string{
				1: {"premium unleaded", "super unleaded", "plus"},
			},
		},
	}

	for _, order := range orders {
		result, err := Compile(order)
		require.NoError(t, err)

		for _, unit := range result.UnitNumbers {
			all := result.CategoriesByUnit[unit]
			measured := result.MeasuredByUnit[unit]
			unmeasured := result.UnmeasuredByUnit[unit]

			// Union equals the full list, intersection empty.
			assert.Len(t, all, len(measured)+len(unmeasured))

			seen := make(map[string]string)
			for _, c := range measured {
				seen[c] = "measured"
			}
			for _, c := range unmeasured {
				_, dup := seen[c]
				assert.False(t, dup, "category %q in both partitions", c)
				seen[c] = "unmeasured"
			}
			for _, c := range all {
				assert.Contains(t, seen, c)
			}
		}
	}
}

func TestCompile_OpenNeckProver(t *testing.T) {
	order := &domain.WorkOrderRecord{
		Services: []domain.ServiceEntry{
			{Description: "open neck prover verification", Quantity: 5},
		},
		Site: domain.SiteDescriptor{Name: "Circle K 2204"},
	}

	result, err := Compile(order)
	require.NoError(t, err)

	assert.Equal(t, domain.ProcedureOpenNeckProver, result.ProcedureCode)
	assert.Equal(t, domain.TemplateOpenNeck, result.Template)
	// Flat 3 steps per dispenser regardless of grade split.
	assert.Equal(t, 15, result.TotalSteps)
}

func TestCompile_ThreeStepTemplate(t *testing.T) {
	// Every grade unmeasured: plus plus kerosene across 2 dispensers.
	order := &domain.WorkOrderRecord{
		Services: []domain.ServiceEntry{
			{Description: "meter calibration", Quantity: 2},
		},
		Site: domain.SiteDescriptor{Name: "Independent"},
		CategoryOverrides: map[int][]string{
			1: {"plus", "kerosene"},
			2: {"plus"},
		},
	}

	result, err := Compile(order)
	require.NoError(t, err)

	assert.Equal(t, domain.TemplateThreeStepUnmeasured, result.Template)
	assert.Equal(t, 3*2+3*1, result.TotalSteps)
}

func TestCompile_Deterministic(t *testing.T) {
	order := &domain.WorkOrderRecord{
		Services: []domain.ServiceEntry{
			{Type: "Meter Service", Description: "AccuMeasure meter calibration"},
		},
		Site: domain.SiteDescriptor{Name: "Wawa Store #1425"},
	}

	first, err := Compile(order)
	require.NoError(t, err)
	second, err := Compile(order)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
