package merged

// Variant is the fused schedule an engine runs.
type Variant int

// Variants.
const (
	// VariantGeneric runs the stages unfused with full intermediates.
	VariantGeneric Variant = iota
	// VariantCdc is expand, depthwise, project.
	VariantCdc
	// VariantCd is expand, depthwise.
	VariantCd
	// VariantDc is depthwise, project.
	VariantDc
)

func (v Variant) String() string {
	switch v {
	case VariantGeneric:
		return "generic"
	case VariantCdc:
		return "Cdc"
	case VariantCd:
		return "Cd"
	case VariantDc:
		return "Dc"
	default:
		return "unknown"
	}
}

// Classify picks the fused variant able to run p. Stage shapes that match
// no fused pattern, and CompatExact, run the generic variant.
func Classify(p *Param) Variant {
	if p.Compat == CompatExact {
		return VariantGeneric
	}
	c0, c1 := &p.Conv[0], &p.Conv[1]
	switch p.Count {
	case 3:
		if c0.Group == 1 && c1.IsDepthwise() && p.Conv[2].IsPointwise() {
			return VariantCdc
		}
	case 2:
		if c0.Group == 1 && c1.IsDepthwise() {
			return VariantCd
		}
		if c0.IsDepthwise() && c1.IsPointwise() {
			return VariantDc
		}
	}
	return VariantGeneric
}

// depthwise returns the index of the depthwise stage of a fused variant.
func (v Variant) depthwise() int {
	if v == VariantDc {
		return 0
	}
	return 1
}
