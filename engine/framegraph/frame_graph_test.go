package framegraph

import (
	"errors"
	"reflect"
	"testing"
)

type buffer struct {
	size int
}

func TestCreateReadWriteRevisions(t *testing.T) {
	g := NewFrameGraph()

	var created, written Resource[*buffer]
	err := g.AddPass(NewCallbackPass("producer", func(b *PassBuilder) error {
		var err error
		created, err = Create[*buffer](b, "buf")
		return err
	}, nil, nil))
	if err != nil {
		t.Fatalf("AddPass producer: %v", err)
	}
	if created.Revision() != 0 || !created.Valid() {
		t.Fatalf("created = %s, want revision 0", created)
	}

	err = g.AddPass(NewCallbackPass("writer", func(b *PassBuilder) error {
		if err := Read(b, created); err != nil {
			return err
		}
		var err error
		written, err = Write(b, created)
		return err
	}, nil, nil))
	if err != nil {
		t.Fatalf("AddPass writer: %v", err)
	}
	if written.ID() != created.ID() || written.Revision() != 1 {
		t.Fatalf("written = %s, want %s with revision 1", written, created)
	}

	err = g.AddPass(NewCallbackPass("reader", func(b *PassBuilder) error {
		return Read(b, written)
	}, nil, nil))
	if err != nil {
		t.Fatalf("AddPass reader: %v", err)
	}

	want := []Edge{
		{From: 0, To: 1, Resource: "buf", Revision: 0},
		{From: 1, To: 2, Resource: "buf", Revision: 1},
	}
	if got := g.Edges(); !reflect.DeepEqual(got, want) {
		t.Errorf("Edges() = %+v, want %+v", got, want)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestSecondWriteOfSameRevisionIsStale(t *testing.T) {
	g := NewFrameGraph()

	var r Resource[int]
	if err := g.AddPass(NewCallbackPass("create", func(b *PassBuilder) error {
		var err error
		r, err = Create[int](b, "counter")
		return err
	}, nil, nil)); err != nil {
		t.Fatalf("AddPass create: %v", err)
	}

	if err := g.AddPass(NewCallbackPass("first", func(b *PassBuilder) error {
		_, err := Write(b, r)
		return err
	}, nil, nil)); err != nil {
		t.Fatalf("first write: %v", err)
	}

	err := g.AddPass(NewCallbackPass("second", func(b *PassBuilder) error {
		_, err := Write(b, r)
		return err
	}, nil, nil))
	if !errors.Is(err, ErrStaleRevision) {
		t.Fatalf("second write = %v, want ErrStaleRevision", err)
	}
	var ge *GraphError
	if !errors.As(err, &ge) || ge.Pass != "second" || ge.Resource != "counter" {
		t.Errorf("error = %#v, want GraphError naming pass and resource", err)
	}
	if got := g.Passes(); !reflect.DeepEqual(got, []string{"create", "first"}) {
		t.Errorf("Passes() = %v, failed pass must not be registered", got)
	}
}

func TestSetupErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *PassBuilder, existing Resource[int]) error
		want  error
	}{
		{
			name: "duplicate name",
			setup: func(b *PassBuilder, _ Resource[int]) error {
				_, err := Create[int](b, "existing")
				return err
			},
			want: ErrDuplicateResource,
		},
		{
			name: "double read",
			setup: func(b *PassBuilder, r Resource[int]) error {
				if err := Read(b, r); err != nil {
					return err
				}
				return Read(b, r)
			},
			want: ErrDoubleRead,
		},
		{
			name: "double write",
			setup: func(b *PassBuilder, r Resource[int]) error {
				next, err := Write(b, r)
				if err != nil {
					return err
				}
				_, err = Write(b, next)
				return err
			},
			want: ErrDoubleWrite,
		},
		{
			name: "future revision",
			setup: func(b *PassBuilder, r Resource[int]) error {
				return Read(b, Resource[int]{id: r.id, revision: 5})
			},
			want: ErrUnknownRevision,
		},
		{
			name: "zero handle",
			setup: func(b *PassBuilder, _ Resource[int]) error {
				return Read(b, Resource[int]{})
			},
			want: ErrUnknownResource,
		},
		{
			name: "write after create",
			setup: func(b *PassBuilder, _ Resource[int]) error {
				r, err := Create[int](b, "fresh")
				if err != nil {
					return err
				}
				_, err = Write(b, r)
				return err
			},
			want: ErrDoubleWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewFrameGraph()
			var existing Resource[int]
			if err := g.AddPass(NewCallbackPass("owner", func(b *PassBuilder) error {
				var err error
				existing, err = Create[int](b, "existing")
				return err
			}, nil, nil)); err != nil {
				t.Fatalf("AddPass owner: %v", err)
			}

			err := g.AddPass(NewCallbackPass("bad", func(b *PassBuilder) error {
				return tt.setup(b, existing)
			}, nil, nil))
			if !errors.Is(err, tt.want) {
				t.Fatalf("AddPass = %v, want %v", err, tt.want)
			}
			if len(g.Edges()) != 0 {
				t.Errorf("failed setup left edges behind: %+v", g.Edges())
			}

			// Everything the failed pass declared was rolled back.
			if err := g.AddPass(NewCallbackPass("good", func(b *PassBuilder) error {
				if _, err := Create[int](b, "fresh"); err != nil {
					return err
				}
				_, err := Write(b, existing)
				return err
			}, nil, nil)); err != nil {
				t.Errorf("AddPass after rollback: %v", err)
			}
		})
	}
}

func TestDuplicatePassName(t *testing.T) {
	g := NewFrameGraph()
	if err := g.AddPass(NewCallbackPass("a", nil, nil, nil)); err != nil {
		t.Fatal(err)
	}
	if err := g.AddPass(NewCallbackPass("a", nil, nil, nil)); !errors.Is(err, ErrDuplicatePass) {
		t.Errorf("AddPass duplicate = %v, want ErrDuplicatePass", err)
	}
}

func TestValidateDetectsWriteAfterRead(t *testing.T) {
	g := NewFrameGraph()
	var r Resource[int]
	mustAdd(t, g, NewCallbackPass("create", func(b *PassBuilder) error {
		var err error
		r, err = Create[int](b, "r")
		return err
	}, nil, nil))
	mustAdd(t, g, NewCallbackPass("overwrite", func(b *PassBuilder) error {
		_, err := Write(b, r)
		return err
	}, nil, nil))
	// Reads revision 0 after it was replaced; it would have to run before "overwrite".
	mustAdd(t, g, NewCallbackPass("late-reader", func(b *PassBuilder) error {
		return Read(b, r)
	}, nil, nil))

	order, err := g.Order()
	if err != nil {
		t.Fatalf("Order() = %v", err)
	}
	if !reflect.DeepEqual(order, []int{0, 2, 1}) {
		t.Errorf("Order() = %v, want [0 2 1]", order)
	}
	if err := g.Validate(); !errors.Is(err, ErrOrderViolation) {
		t.Errorf("Validate() = %v, want ErrOrderViolation", err)
	}
}

func TestCompileThenExecuteInRegistrationOrder(t *testing.T) {
	g := NewFrameGraph()
	var calls []string
	var value Resource[int]

	mustAdd(t, g, NewCallbackPass("publish",
		func(b *PassBuilder) error {
			var err error
			value, err = Create[int](b, "value")
			return err
		},
		func(ctx *RenderContext, rs *Resources) error {
			calls = append(calls, "compile publish")
			Set(rs, value, int(ctx.Frame)*10)
			return nil
		},
		func(ctx *RenderContext, rs *Resources) error {
			calls = append(calls, "execute publish")
			return nil
		}))
	var seen []int
	mustAdd(t, g, NewCallbackPass("consume",
		func(b *PassBuilder) error { return Read(b, value) },
		func(ctx *RenderContext, rs *Resources) error {
			calls = append(calls, "compile consume")
			return nil
		},
		func(ctx *RenderContext, rs *Resources) error {
			calls = append(calls, "execute consume")
			seen = append(seen, MustGet(rs, value))
			return nil
		}))

	for frame := uint64(1); frame <= 2; frame++ {
		ctx := &RenderContext{Frame: frame, FramesInFlight: 2, FrameIndex: uint32(frame % 2)}
		if err := g.Compile(ctx); err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if err := g.Execute(ctx); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	wantCalls := []string{
		"compile publish", "compile consume", "execute publish", "execute consume",
		"compile publish", "compile consume", "execute publish", "execute consume",
	}
	if !reflect.DeepEqual(calls, wantCalls) {
		t.Errorf("calls = %v, want %v", calls, wantCalls)
	}
	if !reflect.DeepEqual(seen, []int{10, 20}) {
		t.Errorf("seen = %v, want [10 20]", seen)
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	g := NewFrameGraph()
	var r Resource[[]int]
	mustAdd(t, g, NewCallbackPass("ring",
		func(b *PassBuilder) error {
			var err error
			r, err = Create[[]int](b, "ring")
			return err
		},
		func(ctx *RenderContext, rs *Resources) error {
			Set(rs, r, []int{int(ctx.FrameIndex), int(ctx.FramesInFlight)})
			return nil
		}, nil))

	ctx := &RenderContext{FrameIndex: 1, FramesInFlight: 3, Frame: 7}
	if err := g.Compile(ctx); err != nil {
		t.Fatal(err)
	}
	first := MustGet(g.Resources(), r)
	if err := g.Compile(ctx); err != nil {
		t.Fatal(err)
	}
	second := MustGet(g.Resources(), r)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("compile not idempotent: %v then %v", first, second)
	}
}

func TestCompileErrorStopsFrame(t *testing.T) {
	g := NewFrameGraph()
	boom := errors.New("boom")
	ran := false
	mustAdd(t, g, NewCallbackPass("fails", nil, func(*RenderContext, *Resources) error { return boom }, nil))
	mustAdd(t, g, NewCallbackPass("after", nil, func(*RenderContext, *Resources) error {
		ran = true
		return nil
	}, nil))

	if err := g.Compile(&RenderContext{}); !errors.Is(err, boom) {
		t.Fatalf("Compile = %v, want boom", err)
	}
	if ran {
		t.Error("pass after the failing pass was compiled")
	}
}

type releasingPass struct {
	Pass
	released *[]string
}

func (p releasingPass) Release() {
	*p.released = append(*p.released, p.Name())
}

func TestReleaseReverseOrder(t *testing.T) {
	g := NewFrameGraph()
	var released []string
	mustAdd(t, g, releasingPass{NewCallbackPass("a", nil, nil, nil), &released})
	mustAdd(t, g, NewCallbackPass("plain", nil, nil, nil))
	mustAdd(t, g, releasingPass{NewCallbackPass("b", nil, nil, nil), &released})

	g.Release()
	if !reflect.DeepEqual(released, []string{"b", "a"}) {
		t.Errorf("released = %v, want [b a]", released)
	}
}

func mustAdd(t *testing.T, g FrameGraph, p Pass) {
	t.Helper()
	if err := g.AddPass(p); err != nil {
		t.Fatalf("AddPass %q: %v", p.Name(), err)
	}
}
