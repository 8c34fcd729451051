package txm

import (
	"fmt"
	"math"
	"time"

	"github.com/txmlab/go-txm/pv"
)

// Device state values written to and read from enum PVs.
const (
	ShutterOpen     int64 = 0
	ShutterClosed   int64 = 1
	CaptureEnabled  int64 = 1
	CaptureDisabled int64 = 0
	FrameData       int64 = 0
	FrameWhite      int64 = 1
	FrameDark       int64 = 2
	DetectorIdle    int64 = 0
	DetectorAcquire int64 = 1
)

// RecursiveFilterType is the Proc1 filter used when averaging consecutive frames.
const RecursiveFilterType = "RecursiveAve"

// Reachable X-ray energy range of the beamline optics, in keV.
const (
	MinEnergy = 6.4
	MaxEnergy = 30.0
)

// nanoBindings is the process-variable table for the nano-CT transmission
// X-ray microscope at sector 32-ID-C. It is declared once and shared by every
// Microscope instance; connections are per instance.
var nanoBindings = []Binding{
	// Detector
	{Name: "Cam1_ImageMode", Address: "{ioc_prefix}cam1:ImageMode", Type: pv.StringType, Wait: true},
	{Name: "Cam1_ArrayCallbacks", Address: "{ioc_prefix}cam1:ArrayCallbacks", Type: pv.IntType, Wait: true},
	{Name: "Cam1_AcquirePeriod", Address: "{ioc_prefix}cam1:AcquirePeriod", Type: pv.FloatType, Wait: true},
	{Name: "Cam1_FrameRateOnOff", Address: "{ioc_prefix}cam1:FrameRateOnOff", Type: pv.IntType, Wait: true},
	{Name: "Cam1_TriggerMode", Address: "{ioc_prefix}cam1:TriggerMode", Type: pv.StringType, Wait: true},
	{Name: "Cam1_SoftwareTrigger", Address: "{ioc_prefix}cam1:SoftwareTrigger", Type: pv.IntType, Wait: true},
	{Name: "Cam1_AcquireTime", Address: "{ioc_prefix}cam1:AcquireTime", Type: pv.FloatType, Wait: true},
	{Name: "Cam1_FrameType", Address: "{ioc_prefix}cam1:FrameType", Type: pv.EnumType, Wait: true},
	{Name: "Cam1_NumImages", Address: "{ioc_prefix}cam1:NumImages", Type: pv.IntType, Wait: true},
	{Name: "Cam1_Acquire", Address: "{ioc_prefix}cam1:Acquire", Type: pv.EnumType, Wait: true},
	{Name: "Cam1_Display", Address: "{ioc_prefix}image1:EnableCallbacks", Type: pv.IntType, Wait: true},

	// HDF5 writer
	{Name: "HDF1_AutoSave", Address: "{ioc_prefix}HDF1:AutoSave", Type: pv.StringType, Wait: true},
	{Name: "HDF1_DeleteDriverFile", Address: "{ioc_prefix}HDF1:DeleteDriverFile", Type: pv.StringType, Wait: true},
	{Name: "HDF1_EnableCallbacks", Address: "{ioc_prefix}HDF1:EnableCallbacks", Type: pv.StringType, Wait: true},
	{Name: "HDF1_BlockingCallbacks", Address: "{ioc_prefix}HDF1:BlockingCallbacks", Type: pv.StringType, Wait: true},
	{Name: "HDF1_FileWriteMode", Address: "{ioc_prefix}HDF1:FileWriteMode", Type: pv.StringType, Wait: true},
	{Name: "HDF1_NumCapture", Address: "{ioc_prefix}HDF1:NumCapture", Type: pv.IntType, Wait: true},
	{Name: "HDF1_Capture", Address: "{ioc_prefix}HDF1:Capture", Type: pv.EnumType, Wait: true},
	{Name: "HDF1_Capture_RBV", Address: "{ioc_prefix}HDF1:Capture_RBV", Type: pv.EnumType, Wait: true},
	{Name: "HDF1_FileName", Address: "{ioc_prefix}HDF1:FileName", Type: pv.StringType, Wait: true},
	{Name: "HDF1_FullFileName_RBV", Address: "{ioc_prefix}HDF1:FullFileName_RBV", Type: pv.StringType, Wait: true},
	{Name: "HDF1_FileTemplate", Address: "{ioc_prefix}HDF1:FileTemplate", Type: pv.StringType, Wait: true},
	{Name: "HDF1_ArrayPort", Address: "{ioc_prefix}HDF1:NDArrayPort", Type: pv.StringType, Wait: true},
	{Name: "HDF1_NextFile", Address: "{ioc_prefix}HDF1:FileNumber", Type: pv.IntType, Wait: true},

	// TIFF writer
	{Name: "TIFF1_AutoSave", Address: "{ioc_prefix}TIFF1:AutoSave", Type: pv.StringType, Wait: true},
	{Name: "TIFF1_DeleteDriverFile", Address: "{ioc_prefix}TIFF1:DeleteDriverFile", Type: pv.StringType, Wait: true},
	{Name: "TIFF1_EnableCallbacks", Address: "{ioc_prefix}TIFF1:EnableCallbacks", Type: pv.StringType, Wait: true},
	{Name: "TIFF1_BlockingCallbacks", Address: "{ioc_prefix}TIFF1:BlockingCallbacks", Type: pv.StringType, Wait: true},
	{Name: "TIFF1_FileWriteMode", Address: "{ioc_prefix}TIFF1:FileWriteMode", Type: pv.StringType, Wait: true},
	{Name: "TIFF1_NumCapture", Address: "{ioc_prefix}TIFF1:NumCapture", Type: pv.IntType, Wait: true},
	{Name: "TIFF1_Capture", Address: "{ioc_prefix}TIFF1:Capture", Type: pv.EnumType, Wait: true},
	{Name: "TIFF1_FileName", Address: "{ioc_prefix}TIFF1:FileName", Type: pv.StringType, Wait: true},
	{Name: "TIFF1_ArrayPort", Address: "{ioc_prefix}TIFF1:NDArrayPort", Type: pv.StringType, Wait: true},

	// Sample motors
	{Name: "Motor_SampleX", Address: "32idcTXM:nf:c0:m1.VAL", Type: pv.FloatType, Wait: true},
	{Name: "Motor_SampleY", Address: "32idcTXM:mxv:c1:m1.VAL", Type: pv.FloatType, Wait: true},
	// Professional Instruments air-bearing rotary stage
	{Name: "Motor_SampleRot", Address: "32idcTXM:ens:c1:m1.VAL", Type: pv.FloatType, Wait: true},
	// Smaract XZ TXM set
	{Name: "Motor_Sample_Top_X", Address: "32idcTXM:mcs:c3:m7.VAL", Type: pv.FloatType, Wait: true},
	{Name: "Motor_Sample_Top_Z", Address: "32idcTXM:mcs:c1:m8.VAL", Type: pv.FloatType, Wait: true},

	// Zone plate
	{Name: "zone_plate_x", Address: "32idcTXM:mcs:c2:m2.VAL", Type: pv.FloatType, Wait: true},
	{Name: "zone_plate_y", Address: "32idc01:m110.VAL", Type: pv.FloatType, Wait: true},
	{Name: "zone_plate_z", Address: "32idcTXM:mcs:c2:m3.VAL", Type: pv.FloatType, Wait: true},

	// CCD motor
	{Name: "CCD_Motor", Address: "32idcTXM:mxv:c1:m6.VAL", Type: pv.FloatType, Wait: true},

	// Shutters
	{Name: "ShutterA_Open", Address: "32idb:rshtrA:Open", Type: pv.EnumType, Wait: true, PermitRequired: true},
	{Name: "ShutterA_Close", Address: "32idb:rshtrA:Close", Type: pv.EnumType, Wait: true, PermitRequired: true},
	{Name: "ShutterA_Move_Status", Address: "PB:32ID:STA_A_FES_CLSD_PL", Type: pv.EnumType, Wait: true},
	{Name: "ShutterB_Open", Address: "32idb:fbShutter:Open.PROC", Type: pv.EnumType, Wait: true, PermitRequired: true},
	{Name: "ShutterB_Close", Address: "32idb:fbShutter:Close.PROC", Type: pv.EnumType, Wait: true, PermitRequired: true},
	{Name: "ShutterB_Move_Status", Address: "PB:32ID:STA_B_SBS_CLSD_PL", Type: pv.EnumType, Wait: true},
	{Name: "ExternalShutter_Trigger", Address: "32idcTXM:shutCam:go", Type: pv.IntType, Wait: true, PermitRequired: true},
	{Name: "Fast_Shutter_Uniblitz", Address: "32idcTXM:uniblitz:control", Type: pv.EnumType, Wait: true},

	// Fly scan (Professional Instruments air-bearing stage)
	{Name: "Fly_ScanDelta", Address: "32idcTXM:PSOFly3:scanDelta", Type: pv.FloatType, Wait: true},
	{Name: "Fly_StartPos", Address: "32idcTXM:PSOFly3:startPos", Type: pv.FloatType, Wait: true},
	{Name: "Fly_EndPos", Address: "32idcTXM:PSOFly3:endPos", Type: pv.FloatType, Wait: true},
	{Name: "Fly_SlewSpeed", Address: "32idcTXM:PSOFly3:slewSpeed", Type: pv.FloatType, Wait: true},
	{Name: "Fly_Taxi", Address: "32idcTXM:PSOFly3:taxi", Type: pv.IntType, Wait: true},
	{Name: "Fly_Run", Address: "32idcTXM:PSOFly3:fly", Type: pv.IntType, Wait: true},
	{Name: "Fly_ScanControl", Address: "32idcTXM:PSOFly3:scanControl", Type: pv.StringType, Wait: true},
	{Name: "Fly_Calc_Projections", Address: "32idcTXM:PSOFly3:numTriggers", Type: pv.IntType, Wait: true},

	// Proc1 recursive filter
	{Name: "Proc1_Callbacks", Address: "{ioc_prefix}Proc1:EnableCallbacks", Type: pv.StringType, Wait: true},
	{Name: "Proc1_ArrayPort", Address: "{ioc_prefix}Proc1:NDArrayPort", Type: pv.StringType, Wait: true},
	{Name: "Proc1_Filter_Enable", Address: "{ioc_prefix}Proc1:EnableFilter", Type: pv.StringType, Wait: true},
	{Name: "Proc1_Filter_Type", Address: "{ioc_prefix}Proc1:FilterType", Type: pv.StringType, Wait: true},
	{Name: "Proc1_Num_Filter", Address: "{ioc_prefix}Proc1:NumFilter", Type: pv.IntType, Wait: true},
	{Name: "Proc1_Reset_Filter", Address: "{ioc_prefix}Proc1:ResetFilter", Type: pv.IntType, Wait: true},
	{Name: "Proc1_AutoReset_Filter", Address: "{ioc_prefix}Proc1:AutoResetFilter", Type: pv.StringType, Wait: true},
	{Name: "Proc1_Filter_Callbacks", Address: "{ioc_prefix}Proc1:FilterCallbacks", Type: pv.StringType, Wait: true},

	// Energy
	{Name: "DCMmvt", Address: "32ida:KohzuModeBO.VAL", Type: pv.IntType, Wait: true, PermitRequired: true},
	{Name: "GAPputEnergy", Address: "32id:ID32us_energy", Type: pv.FloatType, Wait: false, PermitRequired: true},
	{Name: "EnergyWait", Address: "ID32us:Busy", Type: pv.EnumType, Wait: true},
	{Name: "DCMputEnergy", Address: "32ida:BraggEAO.VAL", Type: pv.FloatType, Wait: true, PermitRequired: true},
}

// Microscope drives the nano-CT transmission X-ray microscope at beamline
// 32-ID-C. It embeds the generic Controller and adds the instrument
// operations built from its binding table.
type Microscope struct {
	*Controller

	shuttersOpen    bool
	externalTrigger bool
	hdfWriterReady  bool
	tiffWriterReady bool
}

// NewMicroscope creates a controller for the nano-CT TXM.
func NewMicroscope(opts ...Option) (*Microscope, error) {
	ctrl, err := New(nanoBindings, opts...)
	if err != nil {
		return nil, err
	}

	return &Microscope{Controller: ctrl, externalTrigger: true}, nil
}

// Float returns a pointer to v, for the optional axes of MoveSample.
func Float(v float64) *float64 { return &v }

// ShuttersOpen reports whether the last shutter operation left the enabled
// shutters open.
func (m *Microscope) ShuttersOpen() bool { return m.shuttersOpen }

// SetExternalTrigger selects between externally triggered frame capture
// (default) and the detector's internal trigger.
func (m *Microscope) SetExternalTrigger(enabled bool) { m.externalTrigger = enabled }

// HDFWriterReady reports whether SetupHDFWriter has armed the HDF5 writer.
func (m *Microscope) HDFWriterReady() bool { return m.hdfWriterReady }

// TIFFWriterReady reports whether SetupTIFFWriter has armed the TIFF writer.
func (m *Microscope) TIFFWriterReady() bool { return m.tiffWriterReady }

// MoveSample moves the sample stage to the given position. Nil axes are left
// where they are. Each axis put honors its binding's wait policy, or the
// active wait scope if one is open.
func (m *Microscope) MoveSample(x, y, z, theta *float64) error {
	m.logger.Debug("moving sample", "x", x, "y", y, "z", z, "theta", theta)

	if x != nil {
		if err := m.Put("Motor_Sample_Top_X", *x); err != nil {
			return err
		}
	}
	if y != nil {
		if err := m.Put("Motor_SampleY", *y); err != nil {
			return err
		}
	}
	if z != nil {
		if err := m.Put("Motor_Sample_Top_Z", *z); err != nil {
			return err
		}
	}
	if theta != nil {
		if err := m.Put("Motor_SampleRot", *theta); err != nil {
			return err
		}
	}

	return nil
}

// MoveEnergy changes the energy of the X-ray source and optics: undulator
// gap, monochromator, zone plate and, with constantMag, the CCD position to
// preserve magnification across the change.
//
// Unlike permit-gated writes, which skip silently, MoveEnergy fails with
// ErrNoPermit outright: a partially executed energy move would leave the
// optics inconsistent. gapOffset is extra energy added to the undulator gap
// setpoint. correctBacklash approaches the gap target from below to take up
// slop in the gap motors; only needed for large moves.
func (m *Microscope) MoveEnergy(energy float64, constantMag bool, gapOffset float64, correctBacklash bool) error {
	if !m.HasPermit() {
		return ErrNoPermit
	}
	if energy < MinEnergy || energy > MaxEnergy {
		return fmt.Errorf("%w: %.4f keV not in [%.1f, %.1f] keV",
			ErrEnergyRange, energy, MinEnergy, MaxEnergy)
	}

	kevToNm := func(kev float64) float64 { return 1240.0 / (kev * 1000.0) }

	// current optics geometry
	oldEnergy, err := m.GetFloat("DCMputEnergy")
	if err != nil {
		return err
	}
	oldCCD, err := m.GetFloat("CCD_Motor")
	if err != nil {
		return err
	}
	oldWavelength := kevToNm(oldEnergy)
	oldZPFocal := m.cfg.zpDiameter * m.cfg.drn / (1000.0 * oldWavelength)
	inner := math.Sqrt(oldCCD*oldCCD - 4.0*oldCCD*oldZPFocal)
	oldD := (oldCCD + inner) / 2.0

	newWavelength := kevToNm(energy)
	newZPFocal := m.cfg.zpDiameter * m.cfg.drn / (1000.0 * newWavelength)

	oldDCMMode, err := m.GetInt("DCMmvt")
	if err != nil {
		return err
	}
	if err := m.Put("DCMmvt", 1); err != nil {
		return err
	}

	var zpWD float64
	if constantMag {
		mag := (oldD - oldZPFocal) / oldZPFocal
		distZPccd := mag*newZPFocal + newZPFocal
		zpWD = distZPccd * newZPFocal / (distZPccd - newZPFocal)
		newCCD := zpWD + distZPccd
		m.logger.Debug("constant magnification energy move", "mag", mag, "new_ccd", newCCD)
		if err := m.Put("CCD_Motor", newCCD); err != nil {
			return err
		}
	} else {
		newD := (oldCCD + math.Sqrt(oldCCD*oldCCD-4.0*oldCCD*newZPFocal)) / 2.0
		zpWD = newD * newZPFocal / (newD - newZPFocal)
		m.logger.Debug("varying magnification energy move", "new_mag", (newD-newZPFocal)/newZPFocal)
	}

	m.logger.Debug("new zone plate z position", "zp_wd", zpWD)
	if err := m.Put("zone_plate_z", zpWD); err != nil {
		return err
	}

	m.logger.Debug("new DCM and gap energy", "energy", energy)
	if err := m.Put("DCMputEnergy", energy); err != nil {
		return err
	}
	if correctBacklash {
		// come up from below to take up slop in the gap motors
		if err := m.Put("GAPputEnergy", energy); err != nil {
			return err
		}
	}
	if err := m.Put("GAPputEnergy", energy+gapOffset); err != nil {
		return err
	}
	if err := m.Put("DCMmvt", oldDCMMode); err != nil {
		return err
	}

	m.logger.Info("changed energy", "energy_kev", energy, "wavelength_nm", newWavelength)

	return nil
}

// OpenShutters opens the enabled shutters and confirms each via its separate
// move-status readback. Without an operating permit the open commands are
// silently skipped, so the status waits will time out unless the shutters are
// already open.
func (m *Microscope) OpenShutters() error {
	start := time.Now()

	if m.cfg.useShutterA {
		m.logger.Debug("opening shutter A")
		if err := m.Put("ShutterA_Open", 1); err != nil {
			return err
		}
		if err := m.WaitFor("ShutterA_Move_Status", ShutterOpen, m.cfg.putTimeout); err != nil {
			return err
		}
	}
	if m.cfg.useShutterB {
		m.logger.Debug("opening shutter B")
		if err := m.Put("ShutterB_Open", 1); err != nil {
			return err
		}
		if err := m.WaitFor("ShutterB_Move_Status", ShutterOpen, m.cfg.putTimeout); err != nil {
			return err
		}
	}

	m.shuttersOpen = m.cfg.useShutterA || m.cfg.useShutterB
	if !m.shuttersOpen {
		m.logger.Warn("neither shutter A nor B enabled")
		return nil
	}

	m.logger.Info("opened shutters",
		"which", m.whichShutters(), "duration", time.Since(start))

	return nil
}

// CloseShutters closes the enabled shutters and confirms via their
// move-status readbacks.
func (m *Microscope) CloseShutters() error {
	start := time.Now()

	if m.cfg.useShutterA {
		m.logger.Debug("closing shutter A")
		if err := m.Put("ShutterA_Close", 1); err != nil {
			return err
		}
		if err := m.WaitFor("ShutterA_Move_Status", ShutterClosed, m.cfg.putTimeout); err != nil {
			return err
		}
	}
	if m.cfg.useShutterB {
		m.logger.Debug("closing shutter B")
		if err := m.Put("ShutterB_Close", 1); err != nil {
			return err
		}
		if err := m.WaitFor("ShutterB_Move_Status", ShutterClosed, m.cfg.putTimeout); err != nil {
			return err
		}
	}

	m.shuttersOpen = false

	if !m.cfg.useShutterA && !m.cfg.useShutterB {
		m.logger.Warn("neither shutter A nor B enabled")
		return nil
	}

	m.logger.Info("closed shutters",
		"which", m.whichShutters(), "duration", time.Since(start))

	return nil
}

func (m *Microscope) whichShutters() string {
	switch {
	case m.cfg.useShutterA && m.cfg.useShutterB:
		return "A and B"
	case m.cfg.useShutterA:
		return "A"
	case m.cfg.useShutterB:
		return "B"
	default:
		return "none"
	}
}

// SetupDetector prepares the camera for frame capture with the given exposure
// time in seconds.
func (m *Microscope) SetupDetector(exposure float64) error {
	m.logger.Debug("setting up detector", "exposure", exposure)

	steps := []struct {
		name  string
		value any
	}{
		{"Cam1_Display", 1},
		{"Cam1_ArrayCallbacks", 1},
		{"Cam1_FrameRateOnOff", 0},
		{"Cam1_AcquireTime", exposure},
		{"Cam1_AcquirePeriod", exposure},
		{"Cam1_TriggerMode", "Internal"},
	}
	for _, s := range steps {
		if err := m.Put(s.name, s.value); err != nil {
			return err
		}
	}

	return nil
}

// SetupHDFWriter prepares the HDF5 file writer to accept numProjections
// frames. With numRecursive greater than one the Proc1 recursive filter is
// routed in front of the writer to average consecutive frames. An empty
// filename keeps the writer's current file name.
func (m *Microscope) SetupHDFWriter(filename string, numProjections int, writeMode string, numRecursive int) error {
	m.logger.Debug("setting up HDF writer",
		"filename", filename, "num_projections", numProjections, "num_recursive", numRecursive)

	if numRecursive > 1 {
		steps := []struct {
			name  string
			value any
		}{
			{"Proc1_Callbacks", "Enable"},
			{"Proc1_Filter_Enable", "Disable"},
			{"HDF1_ArrayPort", "PROC1"},
			{"Proc1_Filter_Type", RecursiveFilterType},
			{"Proc1_Num_Filter", numRecursive},
			{"Proc1_Reset_Filter", 1},
			{"Proc1_AutoReset_Filter", "Yes"},
			{"Proc1_Filter_Callbacks", "Array N only"},
		}
		for _, s := range steps {
			if err := m.Put(s.name, s.value); err != nil {
				return err
			}
		}
	} else {
		if err := m.Put("Proc1_Filter_Enable", "Disable"); err != nil {
			return err
		}
		port, err := m.GetString("Proc1_ArrayPort")
		if err != nil {
			return err
		}
		if err := m.Put("HDF1_ArrayPort", port); err != nil {
			return err
		}
	}

	if err := m.Put("HDF1_NumCapture", numProjections); err != nil {
		return err
	}
	if err := m.Put("HDF1_FileWriteMode", writeMode); err != nil {
		return err
	}
	if filename != "" {
		if err := m.Put("HDF1_FileName", filename); err != nil {
			return err
		}
	}
	if err := m.Put("HDF1_Capture", CaptureEnabled); err != nil {
		return err
	}
	if err := m.WaitFor("HDF1_Capture", CaptureEnabled, m.cfg.putTimeout); err != nil {
		return err
	}

	m.hdfWriterReady = true
	m.logger.Debug("HDF writer ready")

	return nil
}

// SetupTIFFWriter prepares the TIFF file writer to accept numProjections
// frames, with the same recursive-filter handling as SetupHDFWriter.
func (m *Microscope) SetupTIFFWriter(filename string, numProjections int, writeMode string, numRecursive int) error {
	m.logger.Debug("setting up TIFF writer",
		"filename", filename, "num_projections", numProjections, "num_recursive", numRecursive)

	if numRecursive > 1 {
		steps := []struct {
			name  string
			value any
		}{
			{"Proc1_Callbacks", "Enable"},
			{"Proc1_Filter_Enable", "Disable"},
			{"TIFF1_ArrayPort", "PROC1"},
			{"Proc1_Filter_Type", RecursiveFilterType},
			{"Proc1_Num_Filter", numRecursive},
			{"Proc1_Reset_Filter", 1},
			{"Proc1_AutoReset_Filter", "Yes"},
			{"Proc1_Filter_Callbacks", "Array N only"},
		}
		for _, s := range steps {
			if err := m.Put(s.name, s.value); err != nil {
				return err
			}
		}
	}

	steps := []struct {
		name  string
		value any
	}{
		{"TIFF1_AutoSave", "Yes"},
		{"TIFF1_DeleteDriverFile", "No"},
		{"TIFF1_EnableCallbacks", "Enable"},
		{"TIFF1_BlockingCallbacks", "No"},
		{"TIFF1_NumCapture", numProjections},
		{"TIFF1_FileWriteMode", writeMode},
		{"TIFF1_FileName", filename},
		{"TIFF1_Capture", CaptureEnabled},
	}
	for _, s := range steps {
		if err := m.Put(s.name, s.value); err != nil {
			return err
		}
	}

	if err := m.WaitFor("TIFF1_Capture", CaptureEnabled, m.cfg.putTimeout); err != nil {
		return err
	}

	m.tiffWriterReady = true
	m.logger.Debug("TIFF writer ready")

	return nil
}

// CaptureProjections triggers capture of sample projection frames.
func (m *Microscope) CaptureProjections(numProjections int, exposure float64) error {
	if !m.shuttersOpen {
		m.logger.Warn("collecting projections with shutters closed")
	}

	if err := m.Put("Cam1_FrameType", FrameData); err != nil {
		return err
	}

	return m.trigger(numProjections, exposure)
}

// CaptureWhiteField triggers capture of white-field frames; the shutters
// should be open and the sample out of the beam.
func (m *Microscope) CaptureWhiteField(numProjections int, exposure float64) error {
	if !m.shuttersOpen {
		m.logger.Warn("collecting white field with shutters closed")
	}

	if err := m.Put("Cam1_FrameType", FrameWhite); err != nil {
		return err
	}

	return m.trigger(numProjections, exposure)
}

// CaptureDarkField triggers capture of dark-field frames; the shutters should
// be closed first.
func (m *Microscope) CaptureDarkField(numProjections int, exposure float64) error {
	if m.shuttersOpen {
		m.logger.Warn("collecting dark field with shutters open")
	}

	if err := m.Put("Cam1_FrameType", FrameDark); err != nil {
		return err
	}

	return m.trigger(numProjections, exposure)
}

func (m *Microscope) trigger(numProjections int, exposure float64) error {
	if !m.hdfWriterReady && !m.tiffWriterReady {
		m.logger.Warn("capturing with no file writer armed, frames will not be saved")
	}

	if numProjections == 1 {
		return m.triggerSingleProjection(exposure)
	}

	return m.triggerMultipleProjections(numProjections, exposure)
}

// triggerSingleProjection starts one acquisition and waits for the detector
// to return to idle.
func (m *Microscope) triggerSingleProjection(exposure float64) error {
	if err := m.Put("Cam1_Acquire", DetectorAcquire); err != nil {
		return err
	}

	return m.WaitFor("Cam1_Acquire", DetectorIdle, secondsDuration(exposure*2))
}

// triggerMultipleProjections captures numProjections frames back to back,
// either one at a time with the external software trigger or all at once with
// the internal trigger.
func (m *Microscope) triggerMultipleProjections(numProjections int, exposure float64) error {
	start := time.Now()

	if err := m.Put("Cam1_ImageMode", "Multiple"); err != nil {
		return err
	}

	if m.externalTrigger {
		if err := m.Put("Cam1_TriggerMode", "Overlapped"); err != nil {
			return err
		}
		if err := m.Put("Cam1_NumImages", 1); err != nil {
			return err
		}
		for i := 0; i < numProjections; i++ {
			if err := m.Put("Cam1_Acquire", DetectorAcquire); err != nil {
				return err
			}
			if err := m.WaitFor("Cam1_Acquire", DetectorAcquire, 2*time.Second); err != nil {
				return err
			}
			if err := m.Put("Cam1_SoftwareTrigger", 1); err != nil {
				return err
			}
			if err := m.WaitFor("Cam1_Acquire", DetectorIdle, secondsDuration(exposure+5)); err != nil {
				return err
			}
		}
	} else {
		if err := m.Put("Cam1_TriggerMode", "Internal"); err != nil {
			return err
		}
		if err := m.Put("Cam1_NumImages", numProjections); err != nil {
			return err
		}
		if err := m.Put("Cam1_Acquire", DetectorAcquire); err != nil {
			return err
		}
		timeout := secondsDuration(float64(numProjections)*exposure + 5)
		if err := m.WaitFor("Cam1_Acquire", DetectorIdle, timeout); err != nil {
			return err
		}
	}

	m.logger.Info("captured projections",
		"count", numProjections, "duration", time.Since(start))

	return nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
