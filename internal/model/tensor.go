package model

// Sizes of the per-atom attribute blocks produced by the molecule tensor
// encoder. The encoder lives upstream of this module; only the resulting
// vector length matters here because it fixes the model input dimension.
const (
	atomAttributeSize      = 25
	extraAtomAttributeSize = 8
	bondAttributeSize      = 8
	extraBondAttributeSize = 3
)

// TensorSettings controls which optional attribute blocks the molecule
// encoder includes.
type TensorSettings struct {
	AddExtraAtomAttribute bool `yaml:"addExtraAtomAttribute"`
	AddExtraBondAttribute bool `yaml:"addExtraBondAttribute"`
}

// AttributeVectorSize returns the attribute vector length for the given
// tensor settings.
func AttributeVectorSize(ts TensorSettings) int {
	size := atomAttributeSize + bondAttributeSize
	if ts.AddExtraAtomAttribute {
		size += extraAtomAttributeSize
	}
	if ts.AddExtraBondAttribute {
		size += extraBondAttributeSize
	}
	return size
}
