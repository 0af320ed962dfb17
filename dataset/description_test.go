package dataset

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/janelia-flyem/go/gocheck"
)

func (s *DatasetSuite) TestParseDescription(c *C) {
	csv := "path,side,mesh,subject,task,contrast,session\n" +
		"a.gii,lh,fsaverage5,sub-01,rsvp,read,ses-02\n" +
		"\n" +
		"b.gii, rh,fsaverage5,sub-01,rsvp,read,ses-01\n"
	desc, err := ParseDescription(strings.NewReader(csv))
	c.Assert(err, IsNil)
	c.Assert(desc.Rows, HasLen, 2)
	c.Assert(desc.HasSession, Equals, true)
	c.Assert(desc.Rows[0], DeepEquals, Row{
		Mesh: "fsaverage5", Subject: "sub-01", Task: "rsvp", Contrast: "read",
		Side: "lh", Path: "a.gii", Session: "ses-02",
	})
	c.Assert(desc.Rows[1].Side, Equals, "rh")
	c.Assert(desc.NumFiles(), Equals, 2)
	c.Assert(desc.Dir(), Equals, "")
}

func (s *DatasetSuite) TestParseDescriptionErrors(c *C) {
	_, err := ParseDescription(strings.NewReader("mesh,subject,task,contrast,path\nx,y,z,w,p\n"))
	c.Assert(err, ErrorMatches, ".*missing required columns \\[side\\].*")

	_, err = ParseDescription(strings.NewReader("mesh,subject,task,contrast,side,path\n\"unterminated,x,y,z,lh,p\n"))
	c.Assert(err, NotNil)

	_, err = ReadDescription(filepath.Join(s.dir, "nothing.csv"))
	c.Assert(err, NotNil)
}

func (s *DatasetSuite) TestEmptyDescription(c *C) {
	for _, content := range []string{"", "mesh,subject,task,contrast,side,path\n"} {
		desc, err := ParseDescription(strings.NewReader(content))
		c.Assert(err, IsNil)
		c.Assert(desc.Rows, HasLen, 0)
	}
}

func (s *DatasetSuite) TestReadDescription(c *C) {
	path := filepath.Join(s.dir, "sub", "dataset.csv")
	c.Assert(os.MkdirAll(filepath.Dir(path), 0755), IsNil)
	content := "mesh,subject,task,contrast,side,path,mesh_path\nfsaverage3,sub-01,loc,dummy,lh,m.gii,meshes/pial_left.gii\n"
	c.Assert(os.WriteFile(path, []byte(content), 0644), IsNil)

	desc, err := ReadDescription(path)
	c.Assert(err, IsNil)
	c.Assert(desc.Path, Equals, path)
	c.Assert(desc.Dir(), Equals, filepath.Dir(path))
	c.Assert(desc.Rows[0].MeshPath, Equals, "meshes/pial_left.gii")
	c.Assert(string(desc.Bytes()), Equals, content)
}

func (s *DatasetSuite) TestNewDescriptionRoundTrip(c *C) {
	rows := []Row{
		{Mesh: "fsaverage5", Subject: "sub-01", Task: "t", Contrast: "c,with comma", Side: "lh", Path: "p.gii"},
	}
	desc, err := ParseDescription(strings.NewReader(string(NewDescription(rows).Bytes())))
	c.Assert(err, IsNil)
	c.Assert(desc.Rows, DeepEquals, rows)
}
