package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/kbuild/storage"
	"github.com/bitswalk/kbuild/src/kbuild/workspace"
)

type memBackend struct {
	objects   map[string]string
	pingErr   error
	uploadErr error
}

func (m *memBackend) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = string(b)
	return nil
}

func (m *memBackend) Ping(ctx context.Context) error { return m.pingErr }
func (m *memBackend) Type() string                   { return "memory" }
func (m *memBackend) Location() string               { return "memory" }

func writeOutputs(t *testing.T, layout workspace.Layout, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(layout.Out(), rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestKey(t *testing.T) {
	got := Key("mykernel_defconfig", "android13-5.10", "0b9d", "Image.gz")
	if got != "mykernel_defconfig/android13-5.10/0b9d/Image.gz" {
		t.Errorf("Key() = %q", got)
	}
}

func TestCollect(t *testing.T) {
	layout := workspace.New(t.TempDir(), "clang.tar.gz")
	writeOutputs(t, layout, map[string]string{
		"arch/arm64/boot/Image.gz": "gz",
		".config":                  "CONFIG_ARM64=y",
		"arch/arm64/boot/dts/x":    "ignored",
	})

	var names []string
	for _, a := range Collect(layout) {
		names = append(names, a.Name)
	}
	if !reflect.DeepEqual(names, []string{"Image.gz", "config"}) {
		t.Errorf("Collect() names = %v", names)
	}
}

func TestPublish(t *testing.T) {
	layout := workspace.New(t.TempDir(), "clang.tar.gz")
	writeOutputs(t, layout, map[string]string{
		"arch/arm64/boot/Image": "raw",
		".config":               "CONFIG_ARM64=y",
	})

	backend := &memBackend{objects: map[string]string{}}
	keys, err := New(backend).Publish(context.Background(), layout, Target{
		Defconfig: "mykernel_defconfig", Branch: "main", RunID: "run-1",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	want := []string{"mykernel_defconfig/main/run-1/Image", "mykernel_defconfig/main/run-1/config"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if backend.objects[want[1]] != "CONFIG_ARM64=y" {
		t.Errorf("config content = %q", backend.objects[want[1]])
	}
}

func TestPublish_ToLocalStorage(t *testing.T) {
	layout := workspace.New(t.TempDir(), "clang.tar.gz")
	writeOutputs(t, layout, map[string]string{"arch/arm64/boot/Image.lz4": "lz4"})

	dest := t.TempDir()
	backend, err := storage.NewLocal(storage.LocalConfig{BasePath: dest})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(backend).Publish(context.Background(), layout, Target{Defconfig: "d", Branch: "b", RunID: "r"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "d", "b", "r", "Image.lz4"))
	if err != nil || string(got) != "lz4" {
		t.Errorf("published file = %q, %v", got, err)
	}
}

func TestPublish_Failures(t *testing.T) {
	tests := []struct {
		name    string
		backend *memBackend
		outputs map[string]string
		target  error
	}{
		{"unreachable", &memBackend{pingErr: fmt.Errorf("dial tcp: refused")}, map[string]string{".config": "x"}, errors.ErrStorageUnavailable},
		{"nothing built", &memBackend{}, nil, errors.ErrPublishFailed},
		{"upload error", &memBackend{uploadErr: fmt.Errorf("access denied")}, map[string]string{".config": "x"}, errors.ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := workspace.New(t.TempDir(), "clang.tar.gz")
			writeOutputs(t, layout, tt.outputs)
			tt.backend.objects = map[string]string{}

			_, err := New(tt.backend).Publish(context.Background(), layout, Target{Defconfig: "d", Branch: "b", RunID: "r"})
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if errors.GetExitCode(err) != errors.ExitPublish {
				t.Errorf("exit code = %d, want %d", errors.GetExitCode(err), errors.ExitPublish)
			}
		})
	}
}

func TestPublish_UnreachableNamesBackend(t *testing.T) {
	layout := workspace.New(t.TempDir(), "clang.tar.gz")
	writeOutputs(t, layout, map[string]string{".config": "x"})
	backend := &memBackend{objects: map[string]string{}, pingErr: fmt.Errorf("dial tcp: refused")}

	_, err := New(backend).Publish(context.Background(), layout, Target{Defconfig: "d", Branch: "b", RunID: "r"})
	if err == nil || !strings.Contains(err.Error(), "memory storage at memory") {
		t.Fatalf("error %v should name the backend type and location", err)
	}
	if !strings.Contains(err.Error(), "dial tcp: refused") {
		t.Errorf("error %v should keep the cause", err)
	}
}
