package strategy

import (
	"strconv"
	"strings"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
)

// Compile turns a scraped work order into a concrete automation plan. It is
// pure: deterministic over its input and the rule tables, no I/O. Ambiguous
// or incomplete source data resolves to conservative defaults rather than
// failing, so an under-specified visit still yields a runnable plan; only a
// work order with no service entries at all is rejected.
func Compile(order *domain.WorkOrderRecord) (*domain.DispenserStrategy, error) {
	if order == nil || len(order.Services) == 0 {
		return nil, domain.NewCompilationError("work order is empty", domain.ErrEmptyServiceList)
	}

	text := combinedServiceText(order.Services)
	code := detectProcedureCode(text)
	unitCount := extractUnitCount(order.Services, text, code)

	units := make([]int, unitCount)
	for i := range units {
		units[i] = i + 1
	}

	defaults := defaultCategories(order.Site.Name)
	categories := make(map[int][]string, unitCount)
	measured := make(map[int][]string, unitCount)
	unmeasured := make(map[int][]string, unitCount)

	for _, unit := range units {
		list := defaults
		if override, ok := order.CategoryOverrides[unit]; ok && len(override) > 0 {
			list = override
		}
		categories[unit] = append([]string(nil), list...)
		measured[unit], unmeasured[unit] = partitionCategories(list)
	}

	template := selectTemplate(code, measured)
	total := totalSteps(template, units, measured, unmeasured)

	return &domain.DispenserStrategy{
		ProcedureCode:    code,
		UnitNumbers:      units,
		CategoriesByUnit: categories,
		MeasuredByUnit:   measured,
		UnmeasuredByUnit: unmeasured,
		Template:         template,
		TotalSteps:       total,
	}, nil
}

// combinedServiceText joins every entry's type and description into one
// search space for pattern matching.
func combinedServiceText(services []domain.ServiceEntry) string {
	parts := make([]string, 0, len(services)*2)
	for _, svc := range services {
		if svc.Type != "" {
			parts = append(parts, svc.Type)
		}
		if svc.Description != "" {
			parts = append(parts, svc.Description)
		}
	}
	return strings.Join(parts, " ")
}

// detectProcedureCode scans the ordered pattern table, then falls back to a
// bare 4-digit code token, then to STANDARD_SEQUENTIAL.
func detectProcedureCode(text string) domain.ProcedureCode {
	for _, p := range procedurePatterns {
		if p.re.MatchString(text) {
			return p.code
		}
	}
	for _, token := range fourDigitToken.FindAllString(text, -1) {
		if code, ok := procedureCodeTokens[token]; ok {
			return code
		}
	}
	return domain.ProcedureStandardSequential
}

// extractUnitCount resolves how many dispensers the visit covers. An explicit
// quantity on any service entry wins; otherwise a code-specific pattern, then
// any bare in-range number, then the default of 4.
func extractUnitCount(services []domain.ServiceEntry, text string, code domain.ProcedureCode) int {
	for _, svc := range services {
		if svc.Quantity > 0 {
			return svc.Quantity
		}
	}

	switch code {
	case domain.ProcedureQuantityBased:
		if m := dispenserCountPattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	case domain.ProcedureSpecificUnits:
		if n := countUniqueNumbers(text); n > 0 {
			return n
		}
	}

	for _, m := range bareNumberPattern.FindAllString(text, -1) {
		if n, err := strconv.Atoi(m); err == nil && n >= 1 && n <= maxReasonableUnits {
			return n
		}
	}

	return defaultUnitCount
}

func countUniqueNumbers(text string) int {
	seen := make(map[string]struct{})
	for _, m := range unitNumberPattern.FindAllString(text, -1) {
		seen[m] = struct{}{}
	}
	return len(seen)
}

// defaultCategories matches the site name against the brand table,
// case-insensitively, and falls back to the generic lineup.
func defaultCategories(siteName string) []string {
	name := strings.ToLower(siteName)
	for _, brand := range brandCategoryDefaults {
		if strings.Contains(name, brand.keyword) {
			return brand.categories
		}
	}
	return genericDefaultCategories
}

// partitionCategories splits one dispenser's grade list into measured and
// unmeasured, preserving order. Every name lands in exactly one side.
func partitionCategories(list []string) (measured, unmeasured []string) {
	measured = []string{}
	unmeasured = []string{}
	for _, name := range list {
		if isMeasured(name, list) {
			measured = append(measured, name)
		} else {
			unmeasured = append(unmeasured, name)
		}
	}
	return measured, unmeasured
}

// isMeasured classifies one category name within the context of its
// dispenser's full grade list. The premium reclassification only applies to
// names that already match an always-measured compound string: a grade named
// with the premium keyword alone never reaches it and classifies measured
// through the final default.
func isMeasured(name string, unitList []string) bool {
	norm := strings.ToLower(strings.TrimSpace(name))

	for _, compound := range alwaysMeasuredCompounds {
		if strings.Contains(norm, compound) {
			if strings.Contains(norm, premiumKeyword) && hasSuperVariant(unitList) {
				return false
			}
			return true
		}
	}

	for _, never := range neverMeasuredNames {
		if strings.Contains(norm, never) {
			return false
		}
	}

	return true
}

// hasSuperVariant reports whether any grade on the dispenser carries the
// super keyword.
func hasSuperVariant(unitList []string) bool {
	for _, name := range unitList {
		if strings.Contains(strings.ToLower(name), superKeyword) {
			return true
		}
	}
	return false
}

// selectTemplate picks the step-formula family: prover work gets its own
// template, otherwise any measured grade anywhere selects the five-step form.
func selectTemplate(code domain.ProcedureCode, measured map[int][]string) domain.Template {
	if code == domain.ProcedureOpenNeckProver {
		return domain.TemplateOpenNeck
	}
	for _, list := range measured {
		if len(list) > 0 {
			return domain.TemplateFiveStepMeasured
		}
	}
	return domain.TemplateThreeStepUnmeasured
}

func totalSteps(template domain.Template, units []int, measured, unmeasured map[int][]string) int {
	switch template {
	case domain.TemplateOpenNeck:
		return 3 * len(units)
	case domain.TemplateFiveStepMeasured:
		total := 0
		for _, unit := range units {
			total += 5*len(measured[unit]) + 3*len(unmeasured[unit])
		}
		return total
	default:
		total := 0
		for _, unit := range units {
			total += 3 * (len(measured[unit]) + len(unmeasured[unit]))
		}
		return total
	}
}
