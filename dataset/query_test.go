package dataset

import (
	"context"
	"encoding/json"
	"math"

	"github.com/brain-cockpit/cockpit/cockpit"

	. "github.com/janelia-flyem/go/gocheck"
)

func loadResolver(c *C, desc *Description) *Resolver {
	store, err := NewLoader(LoaderConfig{}).Load(context.Background(), desc)
	c.Assert(err, IsNil)
	return NewResolver(ParseMetadata(desc), store)
}

// sameValues compares values treating NaN as equal to NaN.
func sameValues(c *C, got Values, expected ...float64) {
	c.Assert(got, HasLen, len(expected))
	for i, e := range expected {
		if math.IsNaN(e) {
			c.Assert(math.IsNaN(float64(got[i])), Equals, true, Commentf("entry %d: got %v", i, got[i]))
		} else {
			c.Assert(got[i], Equals, float32(e), Commentf("entry %d", i))
		}
	}
}

func isQueryError(err error) bool {
	_, ok := err.(*QueryError)
	return ok
}

var nan = math.NaN()

func (s *DatasetSuite) TestScenarioQueries(c *C) {
	desc, values := writeScenario(c, s.dir)
	r := loadResolver(c, desc)

	m, err := r.ContrastMap("fsaverage3", "sub-01", "localizer", "dummy", cockpit.Left)
	c.Assert(err, IsNil)
	c.Assert(m, HasLen, 642)
	c.Assert([]float32(m), DeepEquals, values)

	m, err = r.ContrastMap("fsaverage3", "sub-02", "localizer", "dummy", cockpit.Left)
	c.Assert(err, IsNil)
	c.Assert(m, IsNil)
	b, err := json.Marshal(m)
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "null")

	mean, err := r.ContrastMapMean("fsaverage3", "localizer", "dummy", cockpit.Left)
	c.Assert(err, IsNil)
	c.Assert([]float32(mean), DeepEquals, values)

	md := r.Metadata()
	c.Assert(md.NumFiles(), Equals, 2)
	c.Assert(md.Subjects, DeepEquals, []string{"sub-01", "sub-02"})
	c.Assert(md.TasksContrasts, DeepEquals, []TaskContrast{{"localizer", "dummy"}})
}

func (s *DatasetSuite) TestHemisphereRoundTrip(c *C) {
	desc, _ := writeScenario(c, s.dir)
	r := loadResolver(c, desc)

	hemi, local, ok := r.ResolveVoxel("fsaverage3", "sub-01", 642, cockpit.Both)
	c.Assert(ok, Equals, true)
	c.Assert(hemi, Equals, cockpit.Right)
	c.Assert(local, Equals, 0)

	hemi, local, ok = r.ResolveVoxel("fsaverage3", "sub-01", 641, cockpit.Both)
	c.Assert(ok, Equals, true)
	c.Assert(hemi, Equals, cockpit.Left)
	c.Assert(local, Equals, 641)

	// Mesh-wide count for means.
	hemi, local, ok = r.ResolveVoxel("fsaverage3", "", 700, cockpit.Both)
	c.Assert(ok, Equals, true)
	c.Assert(hemi, Equals, cockpit.Right)
	c.Assert(local, Equals, 58)

	// sub-02 has no loaded left map, so the split is unknown.
	_, _, ok = r.ResolveVoxel("fsaverage3", "sub-02", 10, cockpit.Both)
	c.Assert(ok, Equals, false)
	fp, err := r.Fingerprint("fsaverage3", "sub-02", 10, cockpit.Both)
	c.Assert(err, IsNil)
	c.Assert(fp, IsNil)

	hemi, local, ok = r.ResolveVoxel("fsaverage3", "sub-02", 10, cockpit.Right)
	c.Assert(ok, Equals, true)
	c.Assert(hemi, Equals, cockpit.Right)
	c.Assert(local, Equals, 10)

	_, _, ok = r.ResolveVoxel("fsaverage3", "sub-01", -1, cockpit.Left)
	c.Assert(ok, Equals, false)
	_, _, ok = r.ResolveVoxel("fsaverage3", "sub-01", 1, cockpit.Hemisphere("up"))
	c.Assert(ok, Equals, false)
}

func (s *DatasetSuite) TestFingerprint(c *C) {
	r := loadResolver(c, writeMixed(c, s.dir))

	fp, err := r.Fingerprint("fsaverage5", "s1", 2, cockpit.Left)
	c.Assert(err, IsNil)
	sameValues(c, fp, 2, 12, 22)

	fp, err = r.Fingerprint("fsaverage5", "s1", 5, cockpit.Both)
	c.Assert(err, IsNil)
	sameValues(c, fp, 0.5, 10.5, 20.5)

	fp, err = r.Fingerprint("fsaverage5", "s2", 5, cockpit.Both)
	c.Assert(err, IsNil)
	sameValues(c, fp, 100.5, nan, nan)

	// Past the end of every map.
	fp, err = r.Fingerprint("fsaverage5", "s1", 7, cockpit.Right)
	c.Assert(err, IsNil)
	sameValues(c, fp, nan, nan, nan)

	b, err := json.Marshal(Values{100.5, float32(nan), 3})
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "[100.5,null,3]")
}

func (s *DatasetSuite) TestFingerprintMean(c *C) {
	r := loadResolver(c, writeMixed(c, s.dir))

	// s2 lacks a/y: its mean is over s1 and s3 only.
	mean, err := r.FingerprintMean("fsaverage5", 2, cockpit.Left)
	c.Assert(err, IsNil)
	sameValues(c, mean, 102, 112, 122)

	// s3 holds NaN at vertex 1.
	mean, err = r.FingerprintMean("fsaverage5", 1, cockpit.Left)
	c.Assert(err, IsNil)
	sameValues(c, mean, 51, 11, 71)

	mean, err = r.FingerprintMean("fsaverage5", 5, cockpit.Both)
	c.Assert(err, IsNil)
	sameValues(c, mean, 100.5, 110.5, 120.5)

	for _, voxel := range []int{0, 1, 2, 1000} {
		mean, err = r.FingerprintMean(IndividualMesh, voxel, cockpit.Left)
		c.Assert(err, IsNil)
		c.Assert(mean, NotNil)
		c.Assert(mean, HasLen, 0)
	}
	b, err := json.Marshal(mean)
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "[]")
}

func (s *DatasetSuite) TestContrastMap(c *C) {
	r := loadResolver(c, writeMixed(c, s.dir))

	m, err := r.ContrastMap("fsaverage5", "s1", "a", "x", cockpit.Both)
	c.Assert(err, IsNil)
	sameValues(c, m, 0, 1, 2, 3, 4, 0.5, 1.5, 2.5, 3.5)

	m, err = r.ContrastMap("fsaverage5", "s1", "a", "x", cockpit.Right)
	c.Assert(err, IsNil)
	sameValues(c, m, 0.5, 1.5, 2.5, 3.5)

	m, err = r.ContrastMap("fsaverage5", "s2", "a", "y", cockpit.Left)
	c.Assert(err, IsNil)
	c.Assert(m, IsNil)

	// Right half missing: no partial concatenation.
	m, err = r.ContrastMap("fsaverage5", "s2", "b", "z", cockpit.Both)
	c.Assert(err, IsNil)
	c.Assert(m, IsNil)
	m, err = r.ContrastMap("fsaverage5", "s2", "b", "z", cockpit.Left)
	c.Assert(err, IsNil)
	c.Assert(m, HasLen, 5)
}

func (s *DatasetSuite) TestContrastMapMean(c *C) {
	r := loadResolver(c, writeMixed(c, s.dir))

	mean, err := r.ContrastMapMean("fsaverage5", "a", "x", cockpit.Left)
	c.Assert(err, IsNil)
	sameValues(c, mean, 100, 51, 102, 103, 104)

	// s2 has no right b/z map, so only s1 and s3 contribute.
	mean, err = r.ContrastMapMean("fsaverage5", "b", "z", cockpit.Both)
	c.Assert(err, IsNil)
	sameValues(c, mean, 120, 21, 122, 123, 124, 120.5, 121.5, 122.5, 123.5)

	mean, err = r.ContrastMapMean(IndividualMesh, "a", "x", cockpit.Left)
	c.Assert(err, IsNil)
	c.Assert(mean, HasLen, 0)
}

func (s *DatasetSuite) TestContrastMapMeanDegenerate(c *C) {
	f := newFixture(s.dir)
	f.add(c, "m", "s1", "t", "present", "lh", ramp(3, 0))
	f.add(c, "m", "s2", "t", "present", "lh", ramp(4, 10))
	f.add(c, "m", "s3", "t", "present", "lh", ramp(3, 20))
	f.describe("m", "s1", "t", "absent", "lh", "maps/none.gii")
	r := loadResolver(c, f.write(c))

	// No subject has the map.
	mean, err := r.ContrastMapMean("m", "t", "absent", cockpit.Left)
	c.Assert(err, IsNil)
	c.Assert(mean, NotNil)
	c.Assert(mean, HasLen, 0)

	// s2 has a different vertex count and is left out.
	mean, err = r.ContrastMapMean("m", "t", "present", cockpit.Left)
	c.Assert(err, IsNil)
	sameValues(c, mean, 10, 11, 12)

	// No right maps at all.
	mean, err = r.ContrastMapMean("m", "t", "present", cockpit.Right)
	c.Assert(err, IsNil)
	c.Assert(mean, HasLen, 0)
	fp, err := r.FingerprintMean("m", 0, cockpit.Right)
	c.Assert(err, IsNil)
	sameValues(c, fp, nan, nan)
}

func (s *DatasetSuite) TestContrastMapMeanOddFirstSubject(c *C) {
	f := newFixture(s.dir)
	f.add(c, "m", "s1", "t", "c", "lh", ramp(4, 0))
	f.add(c, "m", "s2", "t", "c", "lh", ramp(3, 10))
	f.add(c, "m", "s3", "t", "c", "lh", ramp(3, 20))
	r := loadResolver(c, f.write(c))

	// The majority length wins over the first subject's.
	mean, err := r.ContrastMapMean("m", "t", "c", cockpit.Left)
	c.Assert(err, IsNil)
	sameValues(c, mean, 15, 16, 17)
}

func (s *DatasetSuite) TestCommonLength(c *C) {
	maps := func(lengths ...int) []Values {
		var out []Values
		for _, n := range lengths {
			out = append(out, make(Values, n))
		}
		return out
	}
	c.Check(commonLength(nil), Equals, 0)
	c.Check(commonLength(maps(5)), Equals, 5)
	c.Check(commonLength(maps(4, 3, 3)), Equals, 3)
	c.Check(commonLength(maps(4, 3)), Equals, 4)
	c.Check(commonLength(maps(3, 4, 4, 3)), Equals, 3)
}

func (s *DatasetSuite) TestBadQueries(c *C) {
	r := loadResolver(c, writeMixed(c, s.dir))

	_, err := r.Fingerprint("fsaverage7", "s1", 0, cockpit.Left)
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.Fingerprint("fsaverage5", "nobody", 0, cockpit.Left)
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.Fingerprint("fsaverage5", "s1", 0, cockpit.Hemisphere("up"))
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.Fingerprint("fsaverage5", "s1", -3, cockpit.Left)
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.FingerprintMean("fsaverage7", 0, cockpit.Left)
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.FingerprintMean("fsaverage5", 0, cockpit.Hemisphere(""))
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.ContrastMap("fsaverage5", "s1", "a", "nope", cockpit.Left)
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.ContrastMap("fsaverage5", "s1", "a", "x", cockpit.Hemisphere("lh"))
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.ContrastMapMean("fsaverage5", "nope", "x", cockpit.Left)
	c.Assert(isQueryError(err), Equals, true)
	_, err = r.ContrastMapMean("fsaverage7", "a", "x", cockpit.Left)
	c.Assert(isQueryError(err), Equals, true)
}
