package txm

import "github.com/txmlab/go-txm/pv"

// microCTOverrides redirects the stage and fly-scan bindings to the front
// micro-CT stage. All other bindings are inherited from the nano-CT table.
var microCTOverrides = []Binding{
	// Fly scan
	{Name: "Fly_ScanDelta", Address: "32idcTXM:eFly:scanDelta", Type: pv.FloatType, Wait: true},
	{Name: "Fly_StartPos", Address: "32idcTXM:eFly:startPos", Type: pv.FloatType, Wait: true},
	{Name: "Fly_EndPos", Address: "32idcTXM:eFly:endPos", Type: pv.FloatType, Wait: true},
	{Name: "Fly_SlewSpeed", Address: "32idcTXM:eFly:slewSpeed", Type: pv.FloatType, Wait: true},
	{Name: "Fly_Taxi", Address: "32idcTXM:eFly:taxi", Type: pv.IntType, Wait: true},
	{Name: "Fly_Run", Address: "32idcTXM:eFly:fly", Type: pv.IntType, Wait: true},
	{Name: "Fly_ScanControl", Address: "32idcTXM:eFly:scanControl", Type: pv.StringType, Wait: true},
	{Name: "Fly_Calc_Projections", Address: "32idcTXM:eFly:calcNumTriggers", Type: pv.IntType, Wait: true},

	// Stage motors
	{Name: "Motor_SampleX", Address: "32idc01:m33.VAL", Type: pv.FloatType, Wait: true},
	{Name: "Motor_SampleY", Address: "32idc02:m15.VAL", Type: pv.FloatType, Wait: true},
	// PI Micos air-bearing rotary stage
	{Name: "Motor_SampleRot", Address: "32idcTXM:hydra:c0:m1.VAL", Type: pv.FloatType, Wait: true},
	{Name: "Motor_SampleZ", Address: "32idcTXM:mcs:c1:m1.VAL", Type: pv.FloatType, Wait: true},
	// Smaract XZ micro-CT set
	{Name: "Motor_Sample_Top_X", Address: "32idcTXM:mcs:c1:m2.VAL", Type: pv.FloatType, Wait: true},
	{Name: "Motor_Sample_Top_Z", Address: "32idcTXM:mcs:c1:m1.VAL", Type: pv.FloatType, Wait: true},
	{Name: "Motor_X_Tile", Address: "32idc01:m33.VAL", Type: pv.FloatType, Wait: true},
	{Name: "Motor_Y_Tile", Address: "32idc02:m15.VAL", Type: pv.FloatType, Wait: true},
}

// NewMicroCT creates a controller for the micro-CT configuration, sharing the
// nano-CT operations with the front stage's motor and fly-scan addresses.
func NewMicroCT(opts ...Option) (*Microscope, error) {
	ctrl, err := New(mergeBindings(nanoBindings, microCTOverrides), opts...)
	if err != nil {
		return nil, err
	}

	return &Microscope{Controller: ctrl, externalTrigger: true}, nil
}
