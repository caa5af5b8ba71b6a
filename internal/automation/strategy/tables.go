package strategy

import (
	"regexp"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
)

// Classification rule tables. Pure data; the compiler never mutates these.

// procedurePattern pairs a service-text regex with the procedure code it
// selects. The table is ordered and the first match wins.
type procedurePattern struct {
	re   *regexp.Regexp
	code domain.ProcedureCode
}

var procedurePatterns = []procedurePattern{
	{regexp.MustCompile(`(?i)calibrat|accumeasure|meter\s+test`), domain.ProcedureStandardSequential},
	{regexp.MustCompile(`(?i)\b\d+\s*(?:fuel\s+)?dispensers?\b`), domain.ProcedureQuantityBased},
	{regexp.MustCompile(`(?i)(?:dispensers?|units?)\s*#\s*\d+|specific\s+(?:units?|dispensers?)`), domain.ProcedureSpecificUnits},
	{regexp.MustCompile(`(?i)open\s*-?\s*neck|prover`), domain.ProcedureOpenNeckProver},
}

// procedureCodeTokens maps bare 4-digit service codes, as they appear in
// work-order text, to procedure codes. Unknown tokens fall through to the
// STANDARD_SEQUENTIAL default.
var procedureCodeTokens = map[string]domain.ProcedureCode{
	"3146": domain.ProcedureStandardSequential,
	"3147": domain.ProcedureSpecificUnits,
	"3148": domain.ProcedureQuantityBased,
	"2861": domain.ProcedureOpenNeckProver,
}

var fourDigitToken = regexp.MustCompile(`\b(\d{4})\b`)

// Unit-count extraction patterns, keyed by procedure code in the compiler.
var (
	dispenserCountPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:fuel\s+)?dispensers?`)
	unitNumberPattern     = regexp.MustCompile(`\d+`)
	bareNumberPattern     = regexp.MustCompile(`\b(\d+)\b`)
)

const (
	defaultUnitCount   = 4
	maxReasonableUnits = 20
)

// brandDefault pairs a lower-cased brand keyword, matched as a substring of
// the site name, with that brand's stock fuel grade lineup. Ordered so a site
// name matching more than one keyword always resolves the same way.
type brandDefault struct {
	keyword    string
	categories []string
}

var brandCategoryDefaults = []brandDefault{
	{"wawa", []string{"regular", "plus", "premium", "diesel"}},
	{"sheetz", []string{"regular", "plus", "premium", "diesel", "kerosene"}},
	{"circle k", []string{"regular", "plus", "premium", "diesel"}},
	{"7-eleven", []string{"regular", "plus", "premium"}},
	{"royal farms", []string{"regular", "plus", "premium", "diesel"}},
	{"speedway", []string{"regular", "plus", "premium", "diesel"}},
}

// genericDefaultCategories applies when no brand keyword matches.
var genericDefaultCategories = []string{"regular", "plus", "premium", "diesel"}

// alwaysMeasuredCompounds are compound grade strings whose presence in a
// category name forces metered calibration. Members are grade-plus-modifier
// strings, never single words, so a bare grade name ("premium") does not
// match here.
var alwaysMeasuredCompounds = []string{
	"regular unleaded",
	"premium unleaded",
	"super unleaded",
	"diesel fuel",
	"ultra low sulfur diesel",
}

// neverMeasuredNames mark grades that only get the shorter verification
// sequence.
var neverMeasuredNames = []string{
	"plus",
	"mid-grade",
	"midgrade",
	"kerosene",
	"diesel exhaust fluid",
}

const (
	premiumKeyword = "premium"
	superKeyword   = "super"
)
