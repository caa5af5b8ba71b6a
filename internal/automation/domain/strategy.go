package domain

// ProcedureCode classifies the service type of a visit and drives how the
// compiler extracts the dispenser count from the work order text.
type ProcedureCode string

const (
	ProcedureStandardSequential ProcedureCode = "STANDARD_SEQUENTIAL"
	ProcedureSpecificUnits      ProcedureCode = "SPECIFIC_UNITS"
	ProcedureQuantityBased      ProcedureCode = "QUANTITY_BASED"
	ProcedureOpenNeckProver     ProcedureCode = "OPEN_NECK_PROVER"
)

// Template selects the step-count formula family applied once the
// measured/unmeasured split is known for every dispenser.
type Template string

const (
	TemplateFiveStepMeasured    Template = "FIVE_STEP_MEASURED"
	TemplateThreeStepUnmeasured Template = "THREE_STEP_UNMEASURED"
	TemplateOpenNeck            Template = "OPEN_NECK"
)

// ServiceEntry is one line item on a scraped work order. Quantity is 0 when
// the source record carried no explicit count.
type ServiceEntry struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity,omitempty"`
}

// SiteDescriptor identifies the customer site being visited.
type SiteDescriptor struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// WorkOrderRecord is the immutable input to strategy compilation, as scraped
// from the work-order system. CategoryOverrides, when present, replaces the
// brand-default fuel grade list for the listed dispensers only.
type WorkOrderRecord struct {
	WorkOrderID       string           `json:"work_order_id,omitempty"`
	VisitID           string           `json:"visit_id,omitempty"`
	Services          []ServiceEntry   `json:"services"`
	Site              SiteDescriptor   `json:"site"`
	CategoryOverrides map[int][]string `json:"category_overrides,omitempty"`
}

// DispenserStrategy is the compiled automation plan: which dispensers to
// operate, which fuel grades apply to each, how each grade is tested, and the
// total number of form steps the portal run will take.
type DispenserStrategy struct {
	ProcedureCode    ProcedureCode    `json:"procedure_code"`
	UnitNumbers      []int            `json:"unit_numbers"`
	CategoriesByUnit map[int][]string `json:"categories_by_unit"`
	MeasuredByUnit   map[int][]string `json:"measured_by_unit"`
	UnmeasuredByUnit map[int][]string `json:"unmeasured_by_unit"`
	Template         Template         `json:"template"`
	TotalSteps       int              `json:"total_steps"`
}

// UnitCount returns the number of dispensers covered by the strategy.
func (s *DispenserStrategy) UnitCount() int {
	return len(s.UnitNumbers)
}
