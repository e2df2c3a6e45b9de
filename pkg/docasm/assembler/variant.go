package assembler

// Variant is the input shape of a binding, resolved once in New.
type Variant int

const (
	VariantArray Variant = iota
	VariantScalarFull
	VariantScalarIDOnly
	VariantScalarMetadataOnly
	VariantScalarBare
)

func (v Variant) String() string {
	switch v {
	case VariantArray:
		return "array"
	case VariantScalarFull:
		return "scalar_full"
	case VariantScalarIDOnly:
		return "scalar_id_only"
	case VariantScalarMetadataOnly:
		return "scalar_metadata_only"
	case VariantScalarBare:
		return "scalar_bare"
	default:
		return "unknown"
	}
}

func (v Variant) withID() bool {
	return v == VariantScalarFull || v == VariantScalarIDOnly
}

func (v Variant) withMetadata() bool {
	return v == VariantScalarFull || v == VariantScalarMetadataOnly
}

func scalarVariant(hasID, hasMetadata bool) Variant {
	switch {
	case hasID && hasMetadata:
		return VariantScalarFull
	case hasID:
		return VariantScalarIDOnly
	case hasMetadata:
		return VariantScalarMetadataOnly
	default:
		return VariantScalarBare
	}
}

// Binding pairs one input column with the output column it feeds.
type Binding struct {
	Input   string
	Output  string
	Variant Variant
}
