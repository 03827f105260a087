package output

import "testing"

func TestRefStrongRelease(t *testing.T) {
	destroyed := false
	target := &Output{}
	r := NewRef(target, func(*Output) { destroyed = true })

	r.AddRef()
	r.Release()
	if destroyed {
		t.Fatal("destroy ran before last strong ref released")
	}
	r.Release()
	if !destroyed {
		t.Fatal("destroy did not run at strong -> 0")
	}
}

func TestWeakRefUpgradeAfterStrongReleased(t *testing.T) {
	target := &Output{}
	r := NewRef(target, func(*Output) {})
	weak := r.Weak()

	r.Release() // strong -> 0
	if got := weak.GetRef(); got != nil {
		t.Fatal("GetRef succeeded after every strong ref was released")
	}
}

func TestWeakRefUpgradeWhileStrongAlive(t *testing.T) {
	target := &Output{}
	r := NewRef(target, func(*Output) {})
	weak := r.Weak()

	upgraded := weak.GetRef()
	if upgraded == nil {
		t.Fatal("GetRef failed while strong count > 0")
	}
	if upgraded.Get() != target {
		t.Fatal("GetRef returned a control block pointing at the wrong target")
	}
	upgraded.Release()
	r.Release()
}

func TestWeakRefDoesNotLeakWeakCountOnUpgrade(t *testing.T) {
	target := &Output{}
	r := NewRef(target, func(*Output) {})
	weak := r.Weak() // weak count now 2 (1 implicit + this one)

	for i := 0; i < 5; i++ {
		got := weak.GetRef()
		if got == nil {
			t.Fatal("unexpected upgrade failure")
		}
		got.Release()
	}

	r.Release() // drops the sole remaining strong ref, releases the implicit weak
	weak.Release()
	if r.weak.Load() != 0 {
		t.Fatalf("weak count = %d, want 0 (upgrade must not inflate it)", r.weak.Load())
	}
}
