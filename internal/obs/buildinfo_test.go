package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReadBuildKeepsLinkerValues(t *testing.T) {
	b := ReadBuild("devserver", "1.2.3", "abcdef0")
	if b.Version != "1.2.3" || b.Commit != "abcdef0" {
		t.Fatalf("unexpected build %+v", b)
	}
	if got := b.String(); got != "devserver 1.2.3 (abcdef0)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestReadBuildFillsBlanks(t *testing.T) {
	b := ReadBuild("ledgerctl", "", "")
	if b.Version == "" || b.Commit == "" {
		t.Fatalf("blank fields left in %+v", b)
	}
}

func TestPublishBuild(t *testing.T) {
	b := Build{Component: "devserver", Version: "1.0.0", Commit: "abc1234"}
	PublishBuild(b)
	PublishBuild(b)
	if got := testutil.ToFloat64(buildGauge.WithLabelValues("devserver", "1.0.0", "abc1234")); got != 1 {
		t.Fatalf("build gauge = %v", got)
	}
}
