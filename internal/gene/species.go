package gene

// Species identifies one supported organism.
type Species struct {
	// Name is the short key used for membership files and cluster member
	// lists, e.g. "human".
	Name string `json:"name" yaml:"name"`
	// Latin is the remote identifier of the annotation source,
	// e.g. "Homo_sapiens".
	Latin string `json:"latin" yaml:"latin"`
	// Reference is the genome assembly code, e.g. "hg38".
	Reference       string `json:"reference" yaml:"reference"`
	EncodeReference string `json:"encodeReference,omitempty" yaml:"encode_reference,omitempty"`
}
