package dataset

import (
	"encoding/json"
	"strings"

	"github.com/brain-cockpit/cockpit/cockpit"

	. "github.com/janelia-flyem/go/gocheck"
)

func (s *DatasetSuite) TestMetadataOrdering(c *C) {
	desc := NewDescription([]Row{
		{Mesh: "fsaverage7", Subject: "sub-02", Task: "rsvp", Contrast: "word", Side: "rh", Path: "1"},
		{Mesh: "fsaverage5", Subject: "sub-01", Task: "audio", Contrast: "tone", Side: "lh", Path: "2"},
		{Mesh: "fsaverage7", Subject: "sub-01", Task: "rsvp", Contrast: "consonant", Side: "lh", Path: "3"},
		{Mesh: "fsaverage5", Subject: "sub-03", Task: "audio", Contrast: "tone", Side: "rh", Path: "4"},
	})
	md := ParseMetadata(desc)
	c.Assert(md.Meshes, DeepEquals, []string{"fsaverage7", "fsaverage5"})
	c.Assert(md.Subjects, DeepEquals, []string{"sub-02", "sub-01", "sub-03"})
	c.Assert(md.Sides, DeepEquals, []string{"rh", "lh"})
	c.Assert(md.Hemispheres(), DeepEquals, []string{"right", "left"})
	c.Assert(md.TasksContrasts, DeepEquals, []TaskContrast{
		{"audio", "tone"}, {"rsvp", "consonant"}, {"rsvp", "word"},
	})
	c.Assert(md.NumFiles(), Equals, 4)

	// Reparsing gives identical ordering.
	for i := 0; i < 5; i++ {
		again := ParseMetadata(desc)
		c.Assert(again.TasksContrasts, DeepEquals, md.TasksContrasts)
		c.Assert(again.Subjects, DeepEquals, md.Subjects)
	}

	tc, ok := md.TaskContrast(1)
	c.Assert(ok, Equals, true)
	c.Assert(tc, Equals, TaskContrast{"rsvp", "consonant"})
	_, ok = md.TaskContrast(3)
	c.Assert(ok, Equals, false)
	subject, ok := md.Subject(2)
	c.Assert(ok, Equals, true)
	c.Assert(subject, Equals, "sub-03")
	_, ok = md.Subject(-1)
	c.Assert(ok, Equals, false)
}

func (s *DatasetSuite) TestMetadataLastWriteWins(c *C) {
	desc := NewDescription([]Row{
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "c", Side: "lh", Path: "first"},
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "c", Side: "left", Path: "second"},
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "c", Side: "rh", Path: "right"},
	})
	md := ParseMetadata(desc)
	path, found := md.Path(Key{"m", "s", "t", "c", cockpit.Left})
	c.Assert(found, Equals, true)
	c.Assert(path, Equals, "second")
	path, found = md.Path(Key{"m", "s", "t", "c", cockpit.Right})
	c.Assert(found, Equals, true)
	c.Assert(path, Equals, "right")
	_, found = md.Path(Key{"m", "other", "t", "c", cockpit.Left})
	c.Assert(found, Equals, false)
}

func (s *DatasetSuite) TestMetadataSessionOrder(c *C) {
	desc, err := ParseDescription(strings.NewReader(
		"mesh,subject,task,contrast,side,path,session\n" +
			"m,s,t,c,lh,late,ses-03\n" +
			"m,s,t,c,lh,early,ses-01\n" +
			"m,s,t,c,lh,middle,ses-02\n"))
	c.Assert(err, IsNil)
	md := ParseMetadata(desc)
	path, _ := md.Path(Key{"m", "s", "t", "c", cockpit.Left})
	c.Assert(path, Equals, "late")
}

func (s *DatasetSuite) TestMetadataNumericSessionOrder(c *C) {
	desc, err := ParseDescription(strings.NewReader(
		"mesh,subject,task,contrast,side,path,session\n" +
			"m,s,t,c,lh,ses10.gii,10\n" +
			"m,s,t,c,lh,ses2.gii,2\n" +
			"m,s,t,c,rh,ses-10.gii,ses-10\n" +
			"m,s,t,c,rh,ses-2.gii,ses-2\n"))
	c.Assert(err, IsNil)
	md := ParseMetadata(desc)
	path, _ := md.Path(Key{"m", "s", "t", "c", cockpit.Left})
	c.Assert(path, Equals, "ses10.gii")
	path, _ = md.Path(Key{"m", "s", "t", "c", cockpit.Right})
	c.Assert(path, Equals, "ses-10.gii")
}

func (s *DatasetSuite) TestSessionLess(c *C) {
	ordered := []string{"", "1", "1.5", "2", "10", "ses-1", "ses-01b", "ses-2", "ses-10", "ses-10a", "x"}
	for i := range ordered {
		for j := range ordered {
			c.Check(sessionLess(ordered[i], ordered[j]), Equals, i < j, Commentf("%q < %q", ordered[i], ordered[j]))
		}
	}
}

func (s *DatasetSuite) TestMetadataUnknownSide(c *C) {
	desc := NewDescription([]Row{
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "c", Side: "both", Path: "x"},
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "c", Side: "lh", Path: "y"},
	})
	md := ParseMetadata(desc)
	c.Assert(md.NumFiles(), Equals, 2)
	c.Assert(md.Sides, DeepEquals, []string{"both", "lh"})
	c.Assert(md.Hemispheres(), DeepEquals, []string{"left"})
	c.Assert(md.paths, HasLen, 1)
}

func (s *DatasetSuite) TestMetadataEmpty(c *C) {
	for _, desc := range []*Description{nil, NewDescription(nil)} {
		md := ParseMetadata(desc)
		c.Assert(md.Meshes, HasLen, 0)
		c.Assert(md.Subjects, HasLen, 0)
		c.Assert(md.TasksContrasts, HasLen, 0)
		c.Assert(md.Sides, HasLen, 0)
		c.Assert(md.Keys(), HasLen, 0)
		b, err := json.Marshal(md.TasksContrasts)
		c.Assert(err, IsNil)
		c.Assert(string(b), Equals, "[]")
	}
}

func (s *DatasetSuite) TestMetadataKeysAndMeshPaths(c *C) {
	desc := NewDescription([]Row{
		{Mesh: "m", Subject: "s1", Task: "t", Contrast: "b", Side: "lh", Path: "x", MeshPath: "meshes/pial_left.gii"},
		{Mesh: "m", Subject: "s2", Task: "t", Contrast: "a", Side: "rh", Path: "y"},
		{Mesh: "m", Subject: "s1", Task: "t", Contrast: "a", Side: "lh", Path: "z", MeshPath: "meshes/white_left.gii"},
	})
	md := ParseMetadata(desc)
	c.Assert(md.Keys(), DeepEquals, []Key{
		{"m", "s1", "t", "a", cockpit.Left}, {"m", "s1", "t", "a", cockpit.Right},
		{"m", "s1", "t", "b", cockpit.Left}, {"m", "s1", "t", "b", cockpit.Right},
		{"m", "s2", "t", "a", cockpit.Left}, {"m", "s2", "t", "a", cockpit.Right},
		{"m", "s2", "t", "b", cockpit.Left}, {"m", "s2", "t", "b", cockpit.Right},
	})
	p, found := md.MeshPath("m", "s1", cockpit.Left)
	c.Assert(found, Equals, true)
	c.Assert(p, Equals, "meshes/pial_left.gii")
	_, found = md.MeshPath("m", "s2", cockpit.Right)
	c.Assert(found, Equals, false)
}

func (s *DatasetSuite) TestTaskContrastJSON(c *C) {
	b, err := json.Marshal([]TaskContrast{{"localizer", "dummy"}})
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, `[["localizer","dummy"]]`)

	var tc TaskContrast
	c.Assert(json.Unmarshal([]byte(`["a","b"]`), &tc), IsNil)
	c.Assert(tc, Equals, TaskContrast{"a", "b"})
	c.Assert(json.Unmarshal([]byte(`{"task":"a"}`), &tc), NotNil)
}
