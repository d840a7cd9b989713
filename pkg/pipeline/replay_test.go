package pipeline

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"tomorecon/internal/models"
	"tomorecon/pkg/export"
	"tomorecon/pkg/oplog"
	"tomorecon/pkg/recon"
)

// TestReplayReproducesLog runs a session, replays its log into a fresh one
// and expects the second log to match the first line for line.
func TestReplayReproducesLog(t *testing.T) {
	var first bytes.Buffer
	s := newSession(t, acquisition(8, 4, 16), Options{
		OpLog:         oplog.New(&first),
		Reconstructor: &stubRecon{},
		Writer:        &stubWriter{},
	})
	p := ReconParams{Algorithm: recon.Gridrec, Filter: recon.Hann}
	steps := []func() error{
		func() error { return s.RemoveStripes(4) },
		func() error { return s.Normalize(NormalizeParams{NegativeFloor: 1e-6}) },
		func() error { return s.SetCenters(7.5, 8.25, 0, 3) },
		func() error { _, err := s.PreviewUpper(p); return err },
		func() error { return s.Reconstruct(p) },
		func() error {
			_, err := s.Export(ExportParams{Dtype: export.Uint8, Format: export.ImageStack, Base: "out/recon"})
			return err
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	entries, err := oplog.Parse(bytes.NewReader(first.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	var second bytes.Buffer
	writer := &stubWriter{}
	r := newSession(t, acquisition(8, 4, 16), Options{Reconstructor: &stubRecon{}, Writer: writer})
	if err := r.Free(); err != nil {
		t.Fatal(err)
	}
	r.opts.OpLog = oplog.New(&second)

	var previews []string
	err = r.Replay(entries, func(op string, slice *models.Volume) error {
		previews = append(previews, op)
		if slice.Shape != [3]int{1, 16, 16} {
			t.Errorf("preview shape = %v", slice.Shape)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if second.String() != first.String() {
		t.Errorf("replayed log differs:\n%s\nwant:\n%s", second.String(), first.String())
	}
	if len(previews) != 1 || previews[0] != "preview_upper" {
		t.Errorf("previews = %v", previews)
	}
	if writer.calls != 1 || writer.got.Dtype != export.Uint8 {
		t.Errorf("writer calls = %d", writer.calls)
	}
	if c, _ := r.ReportedCenters(); c.Upper != 7.5 || c.Lower != 8.25 {
		t.Errorf("replayed centers = %+v", c)
	}
	if r.State() != Exported {
		t.Errorf("state = %v, want exported", r.State())
	}
}

func TestReplayStopsAtFailure(t *testing.T) {
	log := "# session\nnormalize pad=8 floor=1e-6\nbogus\nfree\n"
	entries, err := oplog.Parse(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	s := newSession(t, acquisition(4, 2, 16), Options{})

	// the pad is smaller than the detector, which only fails partially
	err = s.Replay(entries, nil)
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("Replay error = %v, want failure at line 3", err)
	}
	if s.State() != Normalized {
		t.Errorf("state = %v, want normalized", s.State())
	}

	bad, _ := oplog.Parse(strings.NewReader("remove_stripes width=wide\n"))
	err = s.Replay(bad, nil)
	if err == nil || errors.Is(err, ErrPartialFailure) {
		t.Errorf("bad parameter error = %v", err)
	}
}
