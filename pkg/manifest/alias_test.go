package manifest

import (
	"errors"
	"testing"
)

func aliasSet(t *testing.T) *Set {
	t.Helper()

	return testSet(t, &Manifest{
		ID:      "core",
		Version: 1,
		Packs: []PackDef{
			{
				ID:      "emsdk",
				Kind:    KindBuildTool,
				Version: "3.1.0",
				AliasTo: map[Platform]string{
					"linux-x64": "emsdk.linux-x64",
					"osx-arm64": "emsdk.osx-arm64",
					"any":       "emsdk.portable",
				},
			},
			{ID: "plain", Kind: KindLibrary, Version: "1.0.0"},
			// Alias target declared as a pack itself: resolution must not
			// hop through it.
			{
				ID:      "chain-a",
				Kind:    KindLibrary,
				Version: "1.0.0",
				AliasTo: map[Platform]string{"any": "chain-b"},
			},
			{
				ID:      "chain-b",
				Kind:    KindLibrary,
				Version: "9.9.9",
				AliasTo: map[Platform]string{"any": "chain-c"},
			},
		},
	})
}

func TestResolvePlatformAlias(t *testing.T) {
	s := aliasSet(t)

	pkg, err := Resolve(s, PackRef{ID: "emsdk", Version: "3.1.0"}, "linux-x64")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if pkg.ID != "emsdk.linux-x64" || pkg.Version != "3.1.0" {
		t.Errorf("expected emsdk.linux-x64@3.1.0, got %s", pkg)
	}
}

func TestResolveWildcardAlias(t *testing.T) {
	s := aliasSet(t)

	// win-x64 has no explicit alias entry; the "any" wildcard applies.
	pkg, err := Resolve(s, PackRef{ID: "emsdk", Version: "3.1.0"}, "win-x64")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if pkg.ID != "emsdk.portable" {
		t.Errorf("expected wildcard alias emsdk.portable, got %s", pkg.ID)
	}
}

func TestResolvePassthrough(t *testing.T) {
	s := aliasSet(t)

	ref := PackRef{ID: "plain", Version: "1.0.0"}
	pkg, err := Resolve(s, ref, "linux-x64")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if pkg.ID != "plain" || pkg.Version != "1.0.0" {
		t.Errorf("expected passthrough plain@1.0.0, got %s", pkg)
	}
}

func TestResolveSingleHop(t *testing.T) {
	s := aliasSet(t)

	pkg, err := Resolve(s, PackRef{ID: "chain-a", Version: "1.0.0"}, "linux-x64")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	// chain-b is itself aliased to chain-c, but the hop must not happen.
	if pkg.ID != "chain-b" {
		t.Errorf("expected single-hop target chain-b, got %s", pkg.ID)
	}
	if pkg.Version != "1.0.0" {
		t.Errorf("alias must carry the source PackDef version, got %s", pkg.Version)
	}
}

func TestResolveUnknownPack(t *testing.T) {
	s := aliasSet(t)

	_, err := Resolve(s, PackRef{ID: "absent", Version: "1.0.0"}, "linux-x64")
	var unknown *UnknownPackError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownPackError, got %v", err)
	}
}

func TestResolveIsPure(t *testing.T) {
	s := aliasSet(t)
	ref := PackRef{ID: "emsdk", Version: "3.1.0"}

	first, err := Resolve(s, ref, "osx-arm64")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	second, err := Resolve(s, ref, "osx-arm64")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if first != second {
		t.Errorf("resolution not pure: %s vs %s", first, second)
	}
}
