package main

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFile() *File {
	return &File{
		Package: "sample",
		Imports: []string{"context", proxyImport, "reflect", rpcImport, "time"},
		Interfaces: []Interface{
			{
				Name:    "Store",
				Timeout: 2 * time.Second,
				Methods: []Method{
					{
						Name: "Get", RemoteName: "Get", Kind: KindSync,
						Params:  []Param{{"ctx", "context.Context"}, {"key", "string"}},
						Context: "ctx", Results: []string{"[]byte", "error"},
						Result: "[]byte", ReturnsError: true, Timeout: 250 * time.Millisecond,
					},
					{
						Name: "Touch", RemoteName: "Touch", Kind: KindNoResult,
						Params:  []Param{{"ctx", "context.Context"}, {"key", "string"}},
						Context: "ctx", Results: []string{"error"}, ReturnsError: true,
					},
					{
						Name: "Bucket", RemoteName: "Bucket", Kind: KindChain,
						Params:  []Param{{"name", "string"}},
						Results: []string{"Bucket"}, Chain: "Bucket",
					},
					{
						Name: "Size", RemoteName: "Size", Kind: KindLocal,
						Results: []string{"int"},
					},
				},
			},
			{
				Name: "Bucket",
				Methods: []Method{
					{
						Name: "Keys", RemoteName: "Keys", Kind: KindSync,
						Results: []string{"[]string"}, Result: "[]string",
					},
				},
			},
		},
	}
}

func TestRender_FromModel(t *testing.T) {
	src, err := render(sampleFile())
	require.NoError(t, err)
	out := string(src)

	_, err = parser.ParseFile(token.NewFileSet(), "gen.go", src, parser.AllErrors)
	require.NoError(t, err, out)

	for _, want := range []string{
		"// Code generated by rpcgen; DO NOT EDIT.",
		"proxy.Register(func(s *rpc.Sender) Store { return NewStoreClient(s) })",
		"s.Engine().SetClassTimeout(s.Class(), 2000*time.Millisecond)",
		`err := c.sender.FireSync(ctx, c.sender.Invoke("Get", key).WithTimeout(250*time.Millisecond), &out)`,
		`err := c.sender.FireAndForget(c.sender.Invoke("Touch", key).NoResult())`,
		`return NewBucketClient(c.sender.Chain(c.sender.Invoke("Bucket", name), bucketClass))`,
		"c.local = StoreLocal{Remote: c}",
		"return c.local.Size()",
		`err := c.sender.FireSync(context.Background(), c.sender.Invoke("Keys"), &out)`,
		"var _ Bucket = (*BucketClient)(nil)",
	} {
		assert.Contains(t, out, want)
	}
	// Bucket has no local methods
	assert.NotContains(t, out, "BucketLocal")
}

func TestMarkers(t *testing.T) {
	tests := []struct {
		comment string
		marker  bool
		wantErr bool
		check   func(t *testing.T, mk markers)
	}{
		{comment: "// plain doc", marker: false},
		{comment: "//rpc:noresult", marker: true, check: func(t *testing.T, mk markers) { assert.True(t, mk.noResult) }},
		{comment: "//rpc:local", marker: true, check: func(t *testing.T, mk markers) { assert.True(t, mk.local) }},
		{comment: "//rpc:timeout 1m30s", marker: true, check: func(t *testing.T, mk markers) {
			assert.Equal(t, 90*time.Second, mk.timeout)
		}},
		{comment: "//rpc:timeout", marker: true, wantErr: true},
		{comment: "//rpc:timeout -1s", marker: true, wantErr: true},
		{comment: "//rpc:whatever", marker: true, wantErr: true},
		{comment: "//rpc:", marker: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			var mk markers
			ok, err := mk.parseMarker(tt.comment)
			assert.Equal(t, tt.marker, ok)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, mk)
			}
		})
	}
}

func TestBuildFile_Testdata(t *testing.T) {
	pkg, err := load(filepath.Join("testdata", "greet"))
	require.NoError(t, err)

	file, err := buildFile(pkg, []string{"Greeter", "Room"})
	require.NoError(t, err)
	require.Len(t, file.Interfaces, 2)

	greeter := file.Interfaces[0]
	assert.Equal(t, 3*time.Second, greeter.Timeout)
	assert.True(t, greeter.HasLocal())

	byName := make(map[string]Method)
	for _, m := range greeter.Methods {
		byName[m.Name] = m
	}
	assert.Equal(t, KindSync, byName["Hello"].Kind)
	assert.Equal(t, "string", byName["Hello"].Result)
	assert.Equal(t, "ctx", byName["Hello"].Context)

	assert.Equal(t, KindNoResult, byName["Wave"].Kind)

	assert.Equal(t, KindAsync, byName["CountAsync"].Kind)
	assert.Equal(t, "Count", byName["CountAsync"].RemoteName)
	assert.Equal(t, "int64", byName["CountAsync"].Result)
	assert.Equal(t, 500*time.Millisecond, byName["CountAsync"].Timeout)

	assert.Equal(t, KindChain, byName["Room"].Kind)
	assert.Equal(t, "Room", byName["Room"].Chain)

	assert.Equal(t, KindLocal, byName["Describe"].Kind)
	assert.Equal(t, KindSync, byName["Ping"].Kind)

	assert.Contains(t, file.Imports, taskImport)
	assert.Contains(t, file.Imports, "context")
	assert.Contains(t, file.Imports, "time")

	src, err := render(file)
	require.NoError(t, err)
	assert.Contains(t, string(src), "return rpc.SendAsync[int64](ctx, c.sender, c.sender.Invoke(\"Count\").WithTimeout(500*time.Millisecond))")
}

func TestBuildFile_Errors(t *testing.T) {
	pkg, err := load(filepath.Join("testdata", "greet"))
	require.NoError(t, err)

	_, err = buildFile(pkg, []string{"Broken"})
	assert.ErrorContains(t, err, "unknown marker")

	_, err = buildFile(pkg, []string{"GreeterLocal"})
	assert.ErrorContains(t, err, "not an interface")

	_, err = buildFile(pkg, []string{"Nope"})
	assert.ErrorContains(t, err, "not found")
}

func TestApp_WritesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "greet_rpc.go")
	err := app().Run([]string{"rpcgen", "-d", filepath.Join("testdata", "greet"), "-t", "Greeter", "-t", "Room", "-o", out})
	require.NoError(t, err)

	src, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(src), "// Code generated by rpcgen; DO NOT EDIT."))
	assert.Contains(t, string(src), "func NewRoomClient(s *rpc.Sender) *RoomClient")
}
