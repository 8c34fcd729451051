package txm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/txmlab/go-txm/pv"
)

func newTestMicroscope(t *testing.T, opts ...Option) (*Microscope, *pv.SimTransport) {
	t.Helper()

	tr := pv.NewSimTransport()
	m, err := NewMicroscope(append([]Option{
		WithTransport(tr),
		WithPollInterval(time.Millisecond),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m, tr
}

// linkShutterB wires shutter B's command PVs to its move-status readback, the
// way the physical shutter behaves.
func linkShutterB(t *testing.T, m *Microscope, tr *pv.SimTransport) {
	t.Helper()

	open, err := m.Address("ShutterB_Open")
	require.NoError(t, err)
	closeAddr, err := m.Address("ShutterB_Close")
	require.NoError(t, err)
	status, err := m.Address("ShutterB_Move_Status")
	require.NoError(t, err)

	tr.Seed(status, ShutterClosed)
	tr.Link(open, status, ShutterOpen)
	tr.Link(closeAddr, status, ShutterClosed)
}

func TestMicroscopeShutters(t *testing.T) {
	require := require.New(t)

	t.Run("OpenAndCloseWithPermit", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithPermit())
		linkShutterB(t, m, tr)

		require.NoError(m.OpenShutters())
		require.True(m.ShuttersOpen())

		status, err := m.Address("ShutterB_Move_Status")
		require.NoError(err)
		require.Equal(ShutterOpen, tr.Value(status))

		require.NoError(m.CloseShutters())
		require.False(m.ShuttersOpen())
		require.Equal(ShutterClosed, tr.Value(status))
	})

	t.Run("NoPermitSkipsCommandAndTimesOutOnReadback", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithPutTimeout(30*time.Millisecond))
		linkShutterB(t, m, tr)

		err := m.OpenShutters()
		require.ErrorIs(err, pv.ErrTimeout)

		open, aerr := m.Address("ShutterB_Open")
		require.NoError(aerr)
		require.Equal(0, tr.PutCount(open))
	})

	t.Run("NoShuttersEnabled", func(t *testing.T) {
		m, _ := newTestMicroscope(t, WithPermit(), WithShutterB(false))
		require.NoError(m.OpenShutters())
		require.False(m.ShuttersOpen())
	})
}

func TestMicroscopeMoveSample(t *testing.T) {
	require := require.New(t)

	m, tr := newTestMicroscope(t)

	require.NoError(m.MoveSample(Float(0.05), nil, Float(-1.2), Float(90)))

	topX, err := m.Address("Motor_Sample_Top_X")
	require.NoError(err)
	require.Equal(0.05, tr.Value(topX))

	y, err := m.Address("Motor_SampleY")
	require.NoError(err)
	require.Equal(0, tr.PutCount(y))

	rot, err := m.Address("Motor_SampleRot")
	require.NoError(err)
	require.Equal(90.0, tr.Value(rot))
}

func TestMicroscopeMoveEnergy(t *testing.T) {
	require := require.New(t)

	t.Run("RequiresPermit", func(t *testing.T) {
		m, _ := newTestMicroscope(t)
		require.ErrorIs(m.MoveEnergy(9.0, true, 0, true), ErrNoPermit)
	})

	t.Run("RejectsOutOfRangeEnergy", func(t *testing.T) {
		m, _ := newTestMicroscope(t, WithPermit())
		require.ErrorIs(m.MoveEnergy(5.0, true, 0, true), ErrEnergyRange)
		require.ErrorIs(m.MoveEnergy(31.0, true, 0, true), ErrEnergyRange)
	})

	t.Run("ConstantMagnification", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithPermit())

		dcmEnergy, err := m.Address("DCMputEnergy")
		require.NoError(err)
		ccd, err := m.Address("CCD_Motor")
		require.NoError(err)
		gap, err := m.Address("GAPputEnergy")
		require.NoError(err)
		dcmMode, err := m.Address("DCMmvt")
		require.NoError(err)
		zpz, err := m.Address("zone_plate_z")
		require.NoError(err)

		tr.Seed(dcmEnergy, 8.6)
		tr.Seed(ccd, 3200.0)
		tr.Seed(dcmMode, int64(0))

		require.NoError(m.MoveEnergy(9.0, true, 0.05, true))

		require.Equal(9.0, tr.Value(dcmEnergy))
		// backlash approach plus the final offset write
		require.Equal(2, tr.PutCount(gap))
		require.InDelta(9.05, tr.Value(gap), 1e-9)
		// the monochromator mode is restored after the move
		require.Equal(int64(0), tr.Value(dcmMode))

		// optics moved to keep magnification
		zp, ok := tr.Value(zpz).(float64)
		require.True(ok)
		require.Greater(zp, 0.0)
		newCCD, ok := tr.Value(ccd).(float64)
		require.True(ok)
		require.NotEqual(3200.0, newCCD)
	})

	t.Run("NoBacklashCorrection", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithPermit())

		dcmEnergy, err := m.Address("DCMputEnergy")
		require.NoError(err)
		ccd, err := m.Address("CCD_Motor")
		require.NoError(err)
		gap, err := m.Address("GAPputEnergy")
		require.NoError(err)

		tr.Seed(dcmEnergy, 8.6)
		tr.Seed(ccd, 3200.0)

		require.NoError(m.MoveEnergy(9.0, false, 0, false))
		require.Equal(1, tr.PutCount(gap))
	})
}

func TestMicroscopeSetupHDFWriter(t *testing.T) {
	require := require.New(t)

	t.Run("PlainWriter", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))

		procPort, err := m.Address("Proc1_ArrayPort")
		require.NoError(err)
		tr.Seed(procPort, "CAM1.PORT")

		require.NoError(m.SetupHDFWriter("scan_0001.h5", 361, "Stream", 1))

		hdfPort, err := m.Address("HDF1_ArrayPort")
		require.NoError(err)
		require.Equal("CAM1.PORT", tr.Value(hdfPort))

		capture, err := m.Address("HDF1_Capture")
		require.NoError(err)
		require.Equal(CaptureEnabled, tr.Value(capture))

		numCapture, err := m.Address("HDF1_NumCapture")
		require.NoError(err)
		require.Equal(int64(361), tr.Value(numCapture))
	})

	t.Run("RecursiveFilter", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))

		require.NoError(m.SetupHDFWriter("scan_0002.h5", 100, "Stream", 4))

		hdfPort, err := m.Address("HDF1_ArrayPort")
		require.NoError(err)
		require.Equal("PROC1", tr.Value(hdfPort))

		filterType, err := m.Address("Proc1_Filter_Type")
		require.NoError(err)
		require.Equal(RecursiveFilterType, tr.Value(filterType))

		numFilter, err := m.Address("Proc1_Num_Filter")
		require.NoError(err)
		require.Equal(int64(4), tr.Value(numFilter))
	})
}

func TestMicroscopeWriterReadyFlags(t *testing.T) {
	require := require.New(t)

	m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))

	procPort, err := m.Address("Proc1_ArrayPort")
	require.NoError(err)
	tr.Seed(procPort, "CAM1.PORT")

	require.False(m.HDFWriterReady())
	require.False(m.TIFFWriterReady())

	require.NoError(m.SetupHDFWriter("scan.h5", 10, "Stream", 1))
	require.True(m.HDFWriterReady())
	require.False(m.TIFFWriterReady())

	require.NoError(m.SetupTIFFWriter("frames", 10, "Stream", 1))
	require.True(m.TIFFWriterReady())
}

func TestMicroscopeSetupTIFFWriter(t *testing.T) {
	require := require.New(t)

	m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))

	require.NoError(m.SetupTIFFWriter("frames", 10, "Stream", 1))

	capture, err := m.Address("TIFF1_Capture")
	require.NoError(err)
	require.Equal(CaptureEnabled, tr.Value(capture))

	name, err := m.Address("TIFF1_FileName")
	require.NoError(err)
	require.Equal("frames", tr.Value(name))
}

func TestMicroscopeCapture(t *testing.T) {
	require := require.New(t)

	// the simulated detector returns to idle as soon as an acquire settles
	linkDetectorIdle := func(t *testing.T, m *Microscope, tr *pv.SimTransport) {
		t.Helper()
		acquire, err := m.Address("Cam1_Acquire")
		require.NoError(err)
		tr.Link(acquire, acquire, DetectorIdle)
	}

	t.Run("SingleProjection", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))
		linkDetectorIdle(t, m, tr)

		require.NoError(m.CaptureProjections(1, 0.5))

		frameType, err := m.Address("Cam1_FrameType")
		require.NoError(err)
		require.Equal(FrameData, tr.Value(frameType))
	})

	t.Run("MultipleExternalTrigger", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))

		acquire, err := m.Address("Cam1_Acquire")
		require.NoError(err)
		trig, err := m.Address("Cam1_SoftwareTrigger")
		require.NoError(err)
		// each software trigger finishes the exposure and idles the detector
		tr.Link(trig, acquire, DetectorIdle)

		require.NoError(m.CaptureProjections(3, 0.1))

		// one acquire arm and one software trigger per projection
		require.Equal(3, tr.PutCount(acquire))
		require.Equal(3, tr.PutCount(trig))
		require.Equal(DetectorIdle, tr.Value(acquire))

		mode, err := m.Address("Cam1_TriggerMode")
		require.NoError(err)
		require.Equal("Overlapped", tr.Value(mode))

		numImages, err := m.Address("Cam1_NumImages")
		require.NoError(err)
		require.Equal(int64(1), tr.Value(numImages))

		imageMode, err := m.Address("Cam1_ImageMode")
		require.NoError(err)
		require.Equal("Multiple", tr.Value(imageMode))
	})

	t.Run("MultipleInternalTrigger", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))
		linkDetectorIdle(t, m, tr)
		m.SetExternalTrigger(false)

		require.NoError(m.CaptureWhiteField(5, 0.1))

		numImages, err := m.Address("Cam1_NumImages")
		require.NoError(err)
		require.Equal(int64(5), tr.Value(numImages))

		mode, err := m.Address("Cam1_TriggerMode")
		require.NoError(err)
		require.Equal("Internal", tr.Value(mode))

		frameType, err := m.Address("Cam1_FrameType")
		require.NoError(err)
		require.Equal(FrameWhite, tr.Value(frameType))
	})

	t.Run("DarkField", func(t *testing.T) {
		m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))
		linkDetectorIdle(t, m, tr)

		require.NoError(m.CaptureDarkField(1, 0.5))

		frameType, err := m.Address("Cam1_FrameType")
		require.NoError(err)
		require.Equal(FrameDark, tr.Value(frameType))
	})
}

func TestMicroscopeSetupDetector(t *testing.T) {
	require := require.New(t)

	m, tr := newTestMicroscope(t, WithIOCPrefix("32idcPG3:"))

	require.NoError(m.SetupDetector(0.5))

	acquireTime, err := m.Address("Cam1_AcquireTime")
	require.NoError(err)
	require.Equal(0.5, tr.Value(acquireTime))

	mode, err := m.Address("Cam1_TriggerMode")
	require.NoError(err)
	require.Equal("Internal", tr.Value(mode))
}

func TestMicroCTBindings(t *testing.T) {
	require := require.New(t)

	tr := pv.NewSimTransport()
	m, err := NewMicroCT(WithTransport(tr))
	require.NoError(err)
	t.Cleanup(func() { _ = m.Close() })

	// the rotary stage is redirected to the PI Micos air bearing
	rot, err := m.Address("Motor_SampleRot")
	require.NoError(err)
	require.Equal("32idcTXM:hydra:c0:m1.VAL", rot)

	// micro-CT gains a Z stage absent from the nano-CT table
	_, ok := m.Lookup("Motor_SampleZ")
	require.True(ok)

	// detector bindings are inherited unchanged
	nano, err := NewMicroscope(WithTransport(pv.NewSimTransport()))
	require.NoError(err)
	nanoAcquire, err := nano.Address("Cam1_Acquire")
	require.NoError(err)
	microAcquire, err := m.Address("Cam1_Acquire")
	require.NoError(err)
	require.Equal(nanoAcquire, microAcquire)
}
