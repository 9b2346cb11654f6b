// Package validate applies cross-field consistency checks, resolves
// duplicate candidates from multiple extraction passes, and calibrates raw
// confidence signals into the published 0–1 scale.
//
// Validation never fails a document: a suspect field keeps its raw value
// with reduced confidence, because a partial low-confidence result is more
// useful to the caller than an aborted one.
package validate

import (
	"log/slog"
	"math"
	"strings"

	"github.com/gleanhq/glean/internal/docmodel"
	"github.com/gleanhq/glean/internal/locate"
	"github.com/gleanhq/glean/internal/profile"
)

// Config exposes the calibration policy knobs expected to be tuned.
type Config struct {
	ArithmeticTolerance float64 // relative, default 0.01
	UnlocatedCeiling    float64 // default 0.6
	Logger              *slog.Logger
}

// Validator resolves, checks, and calibrates located candidates.
type Validator struct {
	tolerance        float64
	unlocatedCeiling float64
	logger           *slog.Logger
}

// New creates a validator.
func New(cfg Config) *Validator {
	tolerance := cfg.ArithmeticTolerance
	if tolerance <= 0 {
		tolerance = DefaultArithmeticTolerance
	}
	ceiling := cfg.UnlocatedCeiling
	if ceiling <= 0 {
		ceiling = DefaultUnlocatedCeiling
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		tolerance:        tolerance,
		unlocatedCeiling: ceiling,
		logger:           logger.With("component", "validate"),
	}
}

// field is the working state for one resolved field during validation.
type field struct {
	located   locate.Located
	value     string // stringified working value
	penalties []float64
	notes     []string
	corrected bool // certain cross-field correction applied
}

// Validate turns located candidates into the final field mapping for one
// document. Field names are unique in the output; duplicate candidates are
// resolved here, centrally: located beats unlocated, then higher OCR span
// confidence, then the later pass.
func (v *Validator) Validate(located []locate.Located, tier docmodel.Tier, prof profile.Profile) map[string]docmodel.ExtractedField {
	resolved := resolveDuplicates(located)

	fields := make(map[string]*field, len(resolved))
	for name, loc := range resolved {
		fields[name] = &field{located: loc, value: stringValue(loc.Candidate.Value)}
	}

	v.applyDigitFixes(fields, prof)
	v.applyFormatChecks(fields, prof)
	v.applyArithmetic(fields, tier)

	out := make(map[string]docmodel.ExtractedField, len(fields))
	for name, f := range fields {
		out[name] = v.calibrate(name, f, tier)
	}
	return out
}

// resolveDuplicates picks one candidate per field name.
func resolveDuplicates(located []locate.Located) map[string]locate.Located {
	resolved := make(map[string]locate.Located)
	for _, l := range located {
		name := l.Candidate.Name
		current, exists := resolved[name]
		if !exists || prefer(l, current) {
			resolved[name] = l
		}
	}
	return resolved
}

// prefer reports whether a should replace b for the same field name.
func prefer(a, b locate.Located) bool {
	aLoc, bLoc := a.Location != nil, b.Location != nil
	if aLoc != bLoc {
		return aLoc
	}
	if aLoc && a.SpanConf != b.SpanConf {
		return a.SpanConf > b.SpanConf
	}
	// Later pass presumed more deliberate.
	return a.Candidate.PassSeq > b.Candidate.PassSeq
}

// applyDigitFixes repairs OCR digit confusions in amount and date fields
// before arithmetic runs. The original text is preserved for audit.
func (v *Validator) applyDigitFixes(fields map[string]*field, prof profile.Profile) {
	for name, f := range fields {
		cat := prof.CategoryOf(name)
		if cat != profile.CategoryAmount && cat != profile.CategoryDate {
			continue
		}
		fixed, changed := fixDigits(f.value)
		if !changed {
			continue
		}
		if f.located.Candidate.OriginalText == "" {
			f.located.Candidate.OriginalText = f.value
		}
		f.value = fixed
		f.penalties = append(f.penalties, digitFixPenalty)
		f.notes = append(f.notes, "auto-corrected OCR digits")
	}
}

// applyFormatChecks lowers confidence on format failures without ever
// discarding the field.
func (v *Validator) applyFormatChecks(fields map[string]*field, prof profile.Profile) {
	for name, f := range fields {
		if f.value == "" {
			continue
		}
		var ok bool
		var note string
		switch prof.CategoryOf(name) {
		case profile.CategoryAmount:
			ok, note = validAmount(f.value), "amount is not numeric"
		case profile.CategoryDate:
			ok, note = validDate(f.value), "date is not parseable"
		case profile.CategoryEmail:
			ok, note = validEmail(f.value), "invalid email format"
		case profile.CategoryPhone:
			ok, note = validPhone(f.value), "invalid phone format"
		default:
			ok = true
		}
		if !ok {
			f.penalties = append(f.penalties, formatPenalty)
			f.notes = append(f.notes, note)
		}
	}
}

// applyArithmetic checks subtotal + tax ≈ total and Σ line items ≈
// subtotal. When the identity fails and exactly one operand can be blamed,
// that operand is recomputed with certainty; otherwise the involved fields
// are penalized and left untouched.
func (v *Validator) applyArithmetic(fields map[string]*field, tier docmodel.Tier) {
	sub := findField(fields, "subtotal")
	tax := findField(fields, "tax_amount", "tax")
	total := findField(fields, "total_amount", "total")

	if sub != nil && tax != nil && total != nil {
		v.checkSumIdentity(sub, tax, total, tier)
	}

	if items, ok := fields["line_items"]; ok && sub != nil {
		if sum, ok := sumLineItems(items.located.Candidate.Value); ok {
			if subVal, ok := parseAmount(sub.value); ok && !v.withinTolerance(sum, subVal) {
				sub.penalties = append(sub.penalties, mismatchPenalty)
				sub.notes = append(sub.notes, "line items do not sum to subtotal")
				items.penalties = append(items.penalties, mismatchPenalty)
				items.notes = append(items.notes, "line items do not sum to subtotal")
			}
		}
	}
}

// checkSumIdentity enforces subtotal + tax ≈ total.
func (v *Validator) checkSumIdentity(sub, tax, total *field, tier docmodel.Tier) {
	subVal, subOK := parseAmount(sub.value)
	taxVal, taxOK := parseAmount(tax.value)
	totalVal, totalOK := parseAmount(total.value)

	parsed := 0
	for _, ok := range []bool{subOK, taxOK, totalOK} {
		if ok {
			parsed++
		}
	}

	switch parsed {
	case 3:
		if v.withinTolerance(subVal+taxVal, totalVal) {
			return
		}
		// All three parse but disagree: no single operand can be blamed,
		// so the whole triple is suspect.
		for _, f := range []*field{sub, tax, total} {
			f.penalties = append(f.penalties, mismatchPenalty)
			f.notes = append(f.notes, "subtotal + tax does not match total")
		}
	case 2:
		// Exactly one operand unparseable: recompute it from the other
		// two, since the identity pins its value.
		switch {
		case !subOK:
			if candidate := totalVal - taxVal; candidate >= 0 {
				v.correct(sub, candidate, tier)
			}
		case !taxOK:
			if candidate := totalVal - subVal; candidate >= 0 {
				v.correct(tax, candidate, tier)
			}
		case !totalOK:
			v.correct(total, subVal+taxVal, tier)
		}
	}
}

// correct replaces a field's value with a recomputed amount. The original
// value is preserved in original_text for audit.
func (v *Validator) correct(f *field, amount float64, tier docmodel.Tier) {
	if f.located.Candidate.OriginalText == "" {
		f.located.Candidate.OriginalText = f.value
	}
	f.value = formatAmount(amount)
	f.corrected = true
	f.notes = append(f.notes, "recomputed from cross-field arithmetic")
	v.logger.Debug("arithmetic correction applied",
		"field", f.located.Candidate.Name, "value", f.value, "tier", tier)
}

func (v *Validator) withinTolerance(a, b float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return diff == 0
	}
	return diff/scale <= v.tolerance
}

// calibrate maps the raw signals and validation outcomes for one field
// into the published confidence scale.
func (v *Validator) calibrate(name string, f *field, tier docmodel.Tier) docmodel.ExtractedField {
	located := f.located.Location != nil

	var confidence float64
	if f.corrected {
		confidence = correctionMax(tier)
	} else {
		confidence = blend(f.located.Candidate.Confidence, f.located.SpanConf, located)
		for _, p := range f.penalties {
			confidence *= p
		}
		if !located {
			confidence *= unlocatedPenalty
			if confidence > v.unlocatedCeiling {
				confidence = v.unlocatedCeiling
			}
		}
		if max := tierCap(tier); confidence > max {
			confidence = max
		}
	}
	confidence = clamp01(confidence)

	originalText := f.located.SpanText
	if originalText == "" {
		originalText = f.located.Candidate.OriginalText
	}

	value := f.located.Candidate.Value
	if f.value != stringValue(value) {
		// Digit fixes and corrections operate on the string form.
		value = f.value
	}

	return docmodel.ExtractedField{
		Name:         name,
		Value:        value,
		Location:     f.located.Location,
		Confidence:   confidence,
		Level:        docmodel.LevelForConfidence(confidence),
		OriginalText: originalText,
		Notes:        f.notes,
	}
}

// OverallConfidence is the document-level weighted mean, with critical
// fields weighted double.
func OverallConfidence(fields map[string]docmodel.ExtractedField, prof profile.Profile) float64 {
	if len(fields) == 0 {
		return 0
	}
	var weighted, weights float64
	for name, f := range fields {
		weight := 1.0
		if prof.IsCritical(name) {
			weight = 2.0
		}
		weighted += f.Confidence * weight
		weights += weight
	}
	return weighted / weights
}

// findField returns the first field whose name matches one of the given
// names exactly, or contains it as a suffix ("invoice_total" matches
// "total").
func findField(fields map[string]*field, names ...string) *field {
	for _, name := range names {
		if f, ok := fields[name]; ok {
			return f
		}
	}
	for _, name := range names {
		for key, f := range fields {
			if strings.HasSuffix(key, "_"+name) {
				return f
			}
		}
	}
	return nil
}

// sumLineItems adds up amounts found in a line-items value: a list whose
// entries are numbers, numeric strings, or maps carrying an amount-like
// key.
func sumLineItems(value any) (float64, bool) {
	list, ok := value.([]any)
	if !ok || len(list) == 0 {
		return 0, false
	}
	var sum float64
	found := 0
	for _, item := range list {
		switch it := item.(type) {
		case float64:
			sum += it
			found++
		case string:
			if f, ok := parseAmount(it); ok {
				sum += f
				found++
			}
		case map[string]any:
			for _, key := range []string{"amount", "total", "price", "line_total"} {
				if raw, ok := it[key]; ok {
					if f, ok := parseAmount(stringValue(raw)); ok {
						sum += f
						found++
					}
					break
				}
			}
		}
	}
	if found != len(list) {
		// Refuse to compare a partial sum.
		return 0, false
	}
	return sum, true
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatAmount(v)
	default:
		return ""
	}
}
