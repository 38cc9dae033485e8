package predictor

import "errors"

var (
	// ErrInvalidStructure reports input that does not parse as a structure.
	ErrInvalidStructure = errors.New("invalid structure")
	// ErrStructureBuildFailed reports a canonical structure that cannot be featurized.
	ErrStructureBuildFailed = errors.New("structure build failed")
	// ErrArtifactNotFound reports a missing or unreadable model artifact.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrUnknownFingerprint reports an unsupported fingerprint name.
	ErrUnknownFingerprint = errors.New("unknown fingerprint")
)
