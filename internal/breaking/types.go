package breaking

import (
	"changeguard/internal/impact"
)

// ExtractOptions configures candidate extraction
type ExtractOptions struct {
	// RenameOverlapThreshold is the minimum token overlap for a confident rename
	RenameOverlapThreshold float64
}

// DefaultExtractOptions returns sensible defaults
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		RenameOverlapThreshold: 0.5,
	}
}

// kindFamily groups symbol kinds that can replace each other in place
func kindFamily(k impact.SymbolKind) string {
	switch k {
	case impact.KindFunction, impact.KindMethod:
		return "callable"
	case impact.KindType, impact.KindInterface, impact.KindClass:
		return "type"
	case impact.KindConstant, impact.KindVariable:
		return "value"
	default:
		return string(k)
	}
}

// changeKindFor maps a changed declaration shape to its structural change kind
func changeKindFor(k impact.SymbolKind) impact.ChangeKind {
	switch kindFamily(k) {
	case "callable", string(impact.KindRoute):
		return impact.ChangeSignatureChanged
	case string(impact.KindConfigKey), string(impact.KindEnvVar):
		return impact.ChangeBehaviorChanged
	default:
		return impact.ChangeTypeChanged
	}
}

// enclosesBody reports whether changes below a declaration of this kind are body changes
func enclosesBody(k impact.SymbolKind) bool {
	return k == impact.KindFunction || k == impact.KindMethod || k == impact.KindClass
}
