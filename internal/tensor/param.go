package tensor

// Param names a learned parameter and exposes its backing storage. Data
// aliases the owning layer's weights, so copying into it loads the
// parameter in place.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
}

// MatParam describes m as a 2-D parameter.
func MatParam(name string, m *Mat) Param {
	return Param{Name: name, Shape: []int{m.R, m.C}, Data: m.Data}
}

// VecParam describes v as a 1-D parameter.
func VecParam(name string, v []float32) Param {
	return Param{Name: name, Shape: []int{len(v)}, Data: v}
}
