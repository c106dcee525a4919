package identity_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	identity "github.com/brepkit/identity"
	"github.com/brepkit/identity/kernel/kerneltest"
	"github.com/brepkit/identity/shape"
)

// Example shows the minimal identity loop: build a body, give a face a
// persistent identity, rebuild with fresh kernel handles, and look the
// face up again by its stable ID.
func Example() {
	kern := kerneltest.New()
	top := kerneltest.Face("top", shape.Vec3{Z: 10}, shape.Vec3{Z: 1}, 100)
	solidV1 := kerneltest.NewSolid("v1", top)
	kern.ReturnSolid("pad", solidV1)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := identity.NewEngine("bracket.doc", kern, identity.WithLogger(logger))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.AddBody("main"); err != nil {
		fmt.Println("error:", err)
		return
	}
	if err := engine.AddFeature("main", "pad"); err != nil {
		fmt.Println("error:", err)
		return
	}
	if _, err := engine.Rebuild(ctx, "main"); err != nil {
		fmt.Println("error:", err)
		return
	}

	ids, err := engine.Register("main", "pad", []shape.Shape{top})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	// The rebuild returns a brand-new handle for the same face; the
	// history mapping lets the ID follow it.
	topV2 := kerneltest.Face("top-v2", shape.Vec3{Z: 10}, shape.Vec3{Z: 1}, 100)
	solidV2 := kerneltest.NewSolid("v2", topV2)
	kern.ReturnSolid("pad", solidV2)
	kern.SetHistory(solidV1, solidV2, map[shape.Shape][]shape.Shape{
		top: {topV2},
	})

	if _, err := engine.MarkDirty("main", "pad"); err != nil {
		fmt.Println("error:", err)
		return
	}
	if _, err := engine.Rebuild(ctx, "main"); err != nil {
		fmt.Println("error:", err)
		return
	}

	ref, err := engine.Lookup("main", ids[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(ids[0], "->", ref.LastKnown.(*kerneltest.Shape).ID())
	// Output: pad/face[0] -> top-v2
}
