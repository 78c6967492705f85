package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// NewFromFile returns a pointcloud read in from the given file.
func NewFromFile(fn string) (PointCloud, error) {
	switch filepath.Ext(fn) {
	case ".las":
		return NewFromLASFile(fn)
	case ".xyz", ".xyzn":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		return ReadXYZN(f)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// WriteToFile writes the cloud in the format given by the file extension (.las, .pcd, .xyz or .xyzn).
func WriteToFile(cloud PointCloud, fn string) (err error) {
	switch filepath.Ext(fn) {
	case ".las":
		return WriteToLASFile(cloud, fn)
	case ".pcd", ".xyz", ".xyzn":
	default:
		return errors.Errorf("do not know how to write file %q", fn)
	}
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	defer func() {
		err = multierr.Combine(err, w.Flush())
	}()
	if filepath.Ext(fn) == ".pcd" {
		return ToPCD(cloud, w)
	}
	return WriteXYZN(cloud, w)
}

// WriteXYZN writes one "x y z nx ny nz" line per point.
func WriteXYZN(cloud PointCloud, out io.Writer) error {
	var err error
	cloud.Iterate(func(p, n r3.Vector) bool {
		_, err = fmt.Fprintf(out, "%f %f %f %f %f %f\n", p.X, p.Y, p.Z, n.X, n.Y, n.Z)
		return err == nil
	})
	return err
}

// ReadXYZN reads "x y z" or "x y z nx ny nz" lines. Points without a normal get the unit vector
// from the origin. Blank lines and lines starting with # are skipped.
func ReadXYZN(in io.Reader) (PointCloud, error) {
	pc := New()
	scanner := bufio.NewScanner(in)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) != 3 && len(tokens) != 6 {
			return nil, errors.Errorf("unexpected number of fields (%d) on line %d", len(tokens), lineNum)
		}
		vals := make([]float64, len(tokens))
		for i, token := range tokens {
			v, err := strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid field %q on line %d", token, lineNum)
			}
			vals[i] = v
		}
		p := r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}
		n := p.Normalize()
		if len(vals) == 6 {
			n = r3.Vector{X: vals[3], Y: vals[4], Z: vals[5]}
		}
		if err := pc.Set(p, n); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pc, nil
}

// ToPCD writes the cloud as an ascii PCD file with normals.
func ToPCD(cloud PointCloud, out io.Writer) error {
	_, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z normal_x normal_y normal_z\n"+
		"SIZE 4 4 4 4 4 4\n"+
		"TYPE F F F F F F\n"+
		"COUNT 1 1 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA ascii\n",
		cloud.Size(),
		cloud.Size())
	if err != nil {
		return err
	}
	return WriteXYZN(cloud, out)
}

// NewFromLASFile returns a point cloud from reading a LAS file. LAS has no normals, so every
// point gets the unit vector from the origin.
func NewFromLASFile(fn string) (PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	pc := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()
		v := r3.Vector{X: data.X, Y: data.Y, Z: data.Z}
		if err := pc.Set(v, v.Normalize()); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// WriteToLASFile writes the point positions out to a LAS file.
func WriteToLASFile(cloud PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	if err = lf.AddHeader(lidario.LasHeader{PointFormatID: 0}); err != nil {
		return
	}

	var lastErr error
	cloud.Iterate(func(pos, _ r3.Vector) bool {
		pr0 := &lidario.PointRecord0{
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
		}
		if lerr := lf.AddLasPoint(pr0); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
	}
	return err
}
