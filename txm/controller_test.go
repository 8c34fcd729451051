package txm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/txmlab/go-txm/pv"
)

func testBindings() []Binding {
	return []Binding{
		{Name: "current", Address: "ring:current", Type: pv.FloatType, Wait: true},
		{Name: "counter", Address: "test:counter", Type: pv.IntType, Wait: false},
		{Name: "mode", Address: "{ioc_prefix}cam1:Mode", Type: pv.StringType, Wait: true},
		{Name: "shutter", Address: "32idc:shutter", Type: pv.EnumType, Wait: true, PermitRequired: true},
	}
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *pv.SimTransport) {
	t.Helper()

	tr := pv.NewSimTransport()
	ctrl, err := New(testBindings(), append([]Option{WithTransport(tr)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	return ctrl, tr
}

func TestControllerPermitGate(t *testing.T) {
	require := require.New(t)

	t.Run("NoPermitSkipsGatedPut", func(t *testing.T) {
		ctrl, tr := newTestController(t)
		require.False(ctrl.HasPermit())

		// silent no-op: success without any transport call
		require.NoError(ctrl.Put("shutter", 1))
		require.Equal(0, tr.PutCount("32idc:shutter"))
	})

	t.Run("PermitAllowsGatedPut", func(t *testing.T) {
		ctrl, tr := newTestController(t, WithPermit())
		require.True(ctrl.HasPermit())

		require.NoError(ctrl.Put("shutter", 1))
		require.Equal(1, tr.PutCount("32idc:shutter"))
		require.Equal(int64(1), tr.Value("32idc:shutter"))
	})

	t.Run("PermitNeverAffectsUngatedPut", func(t *testing.T) {
		ctrl, tr := newTestController(t)
		require.NoError(ctrl.Put("current", 102.3))
		require.Equal(1, tr.PutCount("ring:current"))

		ctrl2, tr2 := newTestController(t, WithPermit())
		require.NoError(ctrl2.Put("current", 102.3))
		require.Equal(1, tr2.PutCount("ring:current"))
	})
}

func TestControllerTryPutReportsSkip(t *testing.T) {
	require := require.New(t)

	t.Run("GatedWithoutPermit", func(t *testing.T) {
		ctrl, tr := newTestController(t)

		skipped, err := ctrl.TryPut("shutter", 1)
		require.NoError(err)
		require.True(skipped)
		require.Equal(0, tr.PutCount("32idc:shutter"))

		skipped, err = ctrl.TryPutWait("shutter", 1, false)
		require.NoError(err)
		require.True(skipped)
		require.Equal(0, tr.PutCount("32idc:shutter"))
	})

	t.Run("GatedWithPermit", func(t *testing.T) {
		ctrl, tr := newTestController(t, WithPermit())

		skipped, err := ctrl.TryPut("shutter", 1)
		require.NoError(err)
		require.False(skipped)
		require.Equal(1, tr.PutCount("32idc:shutter"))
	})

	t.Run("UngatedNeverSkips", func(t *testing.T) {
		ctrl, tr := newTestController(t)

		skipped, err := ctrl.TryPut("current", 99.5)
		require.NoError(err)
		require.False(skipped)
		require.Equal(1, tr.PutCount("ring:current"))
	})

	t.Run("ErrorsDoNotReportSkip", func(t *testing.T) {
		ctrl, _ := newTestController(t, WithPermit())

		skipped, err := ctrl.TryPut("shutter", "not an enum")
		require.ErrorIs(err, pv.ErrCoercion)
		require.False(skipped)

		skipped, err = ctrl.TryPut("nope", 1)
		require.ErrorIs(err, ErrUnknownBinding)
		require.False(skipped)
	})
}

func TestControllerRoundTrip(t *testing.T) {
	require := require.New(t)

	ctrl, _ := newTestController(t)

	// int written to a float binding reads back as a float
	require.NoError(ctrl.Put("current", 2))
	v, err := ctrl.Get("current")
	require.NoError(err)
	require.Equal(2.0, v)

	f, err := ctrl.GetFloat("current")
	require.NoError(err)
	require.Equal(2.0, f)

	require.NoError(ctrl.Put("counter", 42))
	i, err := ctrl.GetInt("counter")
	require.NoError(err)
	require.Equal(int64(42), i)

	require.NoError(ctrl.Put("mode", "Stream"))
	s, err := ctrl.GetString("mode")
	require.NoError(err)
	require.Equal("Stream", s)
}

func TestControllerCoercionErrors(t *testing.T) {
	require := require.New(t)

	ctrl, tr := newTestController(t)

	// fractional float never truncates into an int binding
	require.ErrorIs(ctrl.Put("counter", 2.5), pv.ErrCoercion)
	require.Equal(0, tr.PutCount("test:counter"))

	require.ErrorIs(ctrl.Put("current", struct{}{}), pv.ErrCoercion)
}

func TestControllerUnknownBinding(t *testing.T) {
	require := require.New(t)

	ctrl, _ := newTestController(t)

	_, err := ctrl.Get("nope")
	require.ErrorIs(err, ErrUnknownBinding)
	require.ErrorIs(ctrl.Put("nope", 1), ErrUnknownBinding)
	require.ErrorIs(ctrl.WaitFor("nope", 1, time.Second), ErrUnknownBinding)

	_, err = ctrl.Address("nope")
	require.ErrorIs(err, ErrUnknownBinding)
}

func TestControllerDuplicateBinding(t *testing.T) {
	require := require.New(t)

	_, err := New([]Binding{
		{Name: "x", Address: "a", Type: pv.FloatType},
		{Name: "x", Address: "b", Type: pv.FloatType},
	})
	require.ErrorIs(err, ErrDuplicateBinding)
}

func TestControllerIOCPrefix(t *testing.T) {
	require := require.New(t)

	ctrl, tr := newTestController(t, WithIOCPrefix("32idcPG3:"))

	addr, err := ctrl.Address("mode")
	require.NoError(err)
	require.Equal("32idcPG3:cam1:Mode", addr)

	require.NoError(ctrl.Put("mode", "Multiple"))
	require.Equal(1, tr.PutCount("32idcPG3:cam1:Mode"))
}

func TestControllerConnectionError(t *testing.T) {
	require := require.New(t)

	tr := pv.NewSimTransport()
	tr.MarkUnreachable("ring:current")

	ctrl, err := New(testBindings(), WithTransport(tr))
	require.NoError(err)

	_, err = ctrl.Get("current")
	require.ErrorIs(err, pv.ErrConnection)
	require.ErrorIs(ctrl.Put("current", 1.0), pv.ErrConnection)
}

func TestControllerPutWaitOverride(t *testing.T) {
	require := require.New(t)

	ctrl, tr := newTestController(t)
	tr.SetLatency("ring:current", 50*time.Millisecond)

	// default policy for this binding blocks; the per-call override does not
	start := time.Now()
	require.NoError(ctrl.PutWait("current", 1.0, false))
	require.Less(time.Since(start), 25*time.Millisecond)

	start = time.Now()
	require.NoError(ctrl.PutWait("current", 2.0, true))
	require.GreaterOrEqual(time.Since(start), 50*time.Millisecond)

	// the stored default is unchanged
	b, ok := ctrl.Lookup("current")
	require.True(ok)
	require.True(b.Wait)
}

func TestControllerPutTimeout(t *testing.T) {
	require := require.New(t)

	ctrl, tr := newTestController(t, WithPutTimeout(20*time.Millisecond))
	tr.SetLatency("ring:current", 300*time.Millisecond)

	require.ErrorIs(ctrl.Put("current", 1.0), pv.ErrTimeout)
}

func TestControllerWaitFor(t *testing.T) {
	require := require.New(t)

	t.Run("ReachesTarget", func(t *testing.T) {
		ctrl, tr := newTestController(t, WithPollInterval(time.Millisecond))
		tr.SetLatency("test:counter", 30*time.Millisecond)

		// counter is declared non-blocking; put returns before settling
		require.NoError(ctrl.Put("counter", 5))
		require.NoError(ctrl.WaitFor("counter", 5, time.Second))
	})

	t.Run("TimesOutApproximatelyOnSchedule", func(t *testing.T) {
		ctrl, tr := newTestController(t, WithPollInterval(time.Millisecond))
		tr.Seed("ring:current", 0.0)

		start := time.Now()
		err := ctrl.WaitFor("current", 99.0, 50*time.Millisecond)
		elapsed := time.Since(start)

		require.ErrorIs(err, pv.ErrTimeout)
		require.GreaterOrEqual(elapsed, 50*time.Millisecond)
		require.Less(elapsed, 500*time.Millisecond)
	})

	t.Run("EqualityFollowsValueKind", func(t *testing.T) {
		ctrl, tr := newTestController(t, WithPollInterval(time.Millisecond))
		tr.Seed("ring:current", int64(2))

		// readback of int 2 matches float target 2.0
		require.NoError(ctrl.WaitFor("current", 2.0, time.Second))
	})
}

func TestControllerBindingsOrder(t *testing.T) {
	require := require.New(t)

	ctrl, _ := newTestController(t)
	bindings := ctrl.Bindings()
	require.Len(bindings, 4)
	require.Equal("current", bindings[0].Name)
	require.Equal("shutter", bindings[3].Name)
}
