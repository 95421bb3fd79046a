package model

// Features in the order the model expects them.
const (
	FeatureBPM = iota
	FeatureRMSSD
	NumFeatures
)

// InputShape is the only input shape the service ever binds.
var InputShape = []int64{1, NumFeatures}

// TensorSpec describes a declared model input or output.
// A negative dimension is dynamic.
type TensorSpec struct {
	Name    string
	Shape   []int64
	Float32 bool
}

// Contract is the tensor contract a compiled model was bound to.
type Contract struct {
	Input  TensorSpec
	Output TensorSpec
}

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Size returns the number of elements the shape describes.
func (t Tensor) Size() int64 {
	return shapeSize(t.Shape)
}

type PredictionRequest struct {
	BPM   *float32 `json:"bpm"`
	RMSSD *float32 `json:"rmssd"`
}

type PredictionResponse struct {
	DepthScore float32 `json:"depth_score"`
	Status     string  `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// shapeSize treats a rank-0 shape as a scalar.
func shapeSize(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
