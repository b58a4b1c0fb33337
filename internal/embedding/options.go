package embedding

// ONNXOptions configures an ONNX image embedder.
type ONNXOptions struct {
	ModelPath  string
	Dimensions int
	// ImageSize is the square input resolution of the model.
	ImageSize  int
	InputName  string
	OutputName string
	CacheSize  int
}

func (o *ONNXOptions) withDefaults() ONNXOptions {
	out := *o
	if out.Dimensions <= 0 {
		out.Dimensions = 512
	}
	if out.ImageSize <= 0 {
		out.ImageSize = 224
	}
	if out.InputName == "" {
		out.InputName = "pixel_values"
	}
	if out.OutputName == "" {
		out.OutputName = "image_embeds"
	}
	return out
}
