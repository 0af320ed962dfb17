/*
	This file contains functions useful for testing the server in other packages.
	Unfortunately, due to the way Go handles compilation of *_test.go files,
	these functions cannot be in server_test.go since they will be unavailable
	to test files in external packages.  So these functions are exported and
	contain the "Test" keyword.
*/

package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/brain-cockpit/cockpit/surface"
)

// TestVertices is the number of vertices per hemisphere of the test mesh.
const TestVertices = 642

// TestMap returns the only surface map of the test dataset: the left
// hemisphere map of sub-01.
func TestMap() []float32 {
	values := make([]float32, TestVertices)
	for i := range values {
		values[i] = 0.25 + float32(i)
	}
	return values
}

const testDescription = `mesh,subject,task,contrast,side,path,mesh_path
fsaverage3,sub-01,localizer,dummy,lh,maps/sub-01_localizer_dummy_lh.gii,meshes/sub-01_pial_left.gii
fsaverage3,sub-02,localizer,dummy,lh,maps/sub-02_localizer_dummy_lh.gii,meshes/sub-02_pial_left.gii
`

const testAlignments = `name,source_subject,target_subject,source_mesh,target_mesh,alignment
sub-01_to_sub-02,sub-01,sub-02,meshes/source.gii,meshes/target.gii,couplings/sub-01_sub-02.csv
`

// 3 source vertices, 2 target vertices; source vertex 2 carries no weight.
const testCoupling = `source,target,weight
0,0,1
0,1,1
1,0,3
`

// TestConfig returns a configuration declaring the test datasets written
// by WriteTestFixture, with extra lines in its [server] section.
func TestConfig(serverSettings string) string {
	return fmt.Sprintf(`[server]
httpAddress = "localhost:0"
workers = 2
%s

[logging]
logfile = ""

[cache]
responses = 1

[features.datasets.scenario]
name = "Scenario"
path = "scenario/dataset.csv"
unit = "z-score"
descriptions = "scenario/descriptions.json"
mesh_types = { default = "pial", other = ["infl"] }

[alignments.datasets.pair]
name = "Pair"
path = "pair/alignments.csv"
`, serverSettings)
}

func writeTestMesh(path string, numVertices int) error {
	return surface.WriteFile(path,
		surface.DataArray{Intent: surface.IntentPointSet, Dims: []int{numVertices, 3}, Values: make([]float32, 3*numVertices)},
		surface.DataArray{Intent: surface.IntentTriangle, Dims: []int{1, 3}, Values: []float32{0, 1, 2}},
	)
}

// WriteTestFixture writes in dir a config.toml with the given [server]
// settings, a surface map dataset "scenario" and an alignment dataset
// "pair".  The scenario dataset has subjects sub-01 and sub-02 and a single
// localizer/dummy contrast on fsaverage3, but only the left map of sub-01
// exists.  It returns the path of the configuration file.
func WriteTestFixture(dir, serverSettings string) (string, error) {
	for _, sub := range []string{"scenario/maps", "scenario/meshes", "pair/meshes", "pair/couplings"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", err
		}
	}
	files := map[string]string{
		"scenario/dataset.csv":             testDescription,
		"scenario/descriptions.json":       `{"dummy": "Dummy contrast", "localizer": {"duration": 300}}`,
		"pair/alignments.csv":              testAlignments,
		"pair/couplings/sub-01_sub-02.csv": testCoupling,
		"config.toml":                      TestConfig(serverSettings),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return "", err
		}
	}
	mapPath := filepath.Join(dir, "scenario", "maps", "sub-01_localizer_dummy_lh.gii")
	if err := surface.WriteFile(mapPath, surface.DataArray{Intent: surface.IntentShape, Values: TestMap()}); err != nil {
		return "", err
	}
	meshes := map[string]int{
		"scenario/meshes/sub-01_pial_left.gii": TestVertices,
		"pair/meshes/source.gii":               3,
		"pair/meshes/target.gii":               2,
	}
	for name, n := range meshes {
		if err := writeTestMesh(filepath.Join(dir, name), n); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "config.toml"), nil
}

// OpenTest returns an initialized server over a test fixture written in a
// temporary directory.  The server is shut down when the test ends.
func OpenTest(t *testing.T, serverSettings string) *Server {
	configPath, err := WriteTestFixture(t.TempDir(), serverSettings)
	if err != nil {
		t.Fatalf("can't write test fixture: %v\n", err)
	}
	return OpenTestConfig(t, configPath)
}

// OpenTestConfig returns an initialized server for a configuration file.
func OpenTestConfig(t *testing.T, configPath string) *Server {
	s, err := New(configPath, "")
	if err != nil {
		t.Fatalf("can't configure test server: %v\n", err)
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("can't open test server: %v\n", err)
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

// TestHTTPResponse returns a response from a test run of the server.
// Use TestHTTP if you just want the response body bytes.
func TestHTTPResponse(t *testing.T, s *Server, method, urlStr string, payload io.Reader) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, urlStr, payload)
	if err != nil {
		t.Fatalf("Unsuccessful %s on %q: %v\n", method, urlStr, err)
	}
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	return resp
}

// TestHTTP returns the response body bytes for a test request, making sure any response has
// status OK.
func TestHTTP(t *testing.T, s *Server, method, urlStr string, payload io.Reader) []byte {
	resp := TestHTTPResponse(t, s, method, urlStr, payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("Bad server response (%d) to %s on %q: %s\n", resp.Code, method, urlStr, resp.Body.String())
	}
	return resp.Body.Bytes()
}

// TestBadHTTP expects a HTTP response with an error status code.
func TestBadHTTP(t *testing.T, s *Server, method, urlStr string, payload io.Reader) {
	resp := TestHTTPResponse(t, s, method, urlStr, payload)
	if resp.Code == http.StatusOK {
		t.Fatalf("Expected bad server response to %s on %q, got %d instead.\n", method, urlStr, resp.Code)
	}
}
