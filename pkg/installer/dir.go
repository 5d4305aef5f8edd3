// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package installer

import (
	"fmt"
	"os"
	fp "path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

const (
	CurrentLink  = "current"
	PreviousLink = "previous"
	imgPrefix    = "fw-"
	imgSuffix    = ".img"
	partSuffix   = ".part"
)

// DirPartition keeps images as files in a directory. The "current" symlink
// names the image to boot; "previous" names the one it replaced. An image
// is written to a .part file and only becomes visible under its final name
// once complete and synced, so the running image is never at risk.
type DirPartition struct {
	Dir string
}

var _ Partition = (*DirPartition)(nil)

func NewDirPartition(dir string) (*DirPartition, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	d := &DirPartition{Dir: dir}
	d.cleanStale()
	return d, nil
}

// remove .part files left by an interrupted session
func (d *DirPartition) cleanStale() {
	parts, _ := fp.Glob(fp.Join(d.Dir, "*"+partSuffix))
	for _, p := range parts {
		log.Logf("removing partial image %s", p)
		if err := os.Remove(p); err != nil {
			log.Logf("remove %s: %s", p, err)
		}
	}
}

func (d *DirPartition) Create(id string) (Target, error) {
	name := imgPrefix + id + imgSuffix
	f, err := os.OpenFile(fp.Join(d.Dir, name+partSuffix), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	return &dirTarget{d: d, f: f, name: name}, nil
}

// Current returns the image file "current" points at, or "" if none.
func (d *DirPartition) Current() (string, error) {
	return d.link(CurrentLink)
}

func (d *DirPartition) Previous() (string, error) {
	return d.link(PreviousLink)
}

func (d *DirPartition) link(name string) (string, error) {
	tgt, err := os.Readlink(fp.Join(d.Dir, name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return fp.Join(d.Dir, tgt), nil
}

type dirTarget struct {
	d    *DirPartition
	f    *os.File
	name string
	done bool
}

func (t *dirTarget) Write(b []byte) (int, error) { return t.f.Write(b) }

func (t *dirTarget) Commit() error {
	if t.done {
		return fmt.Errorf("%s already finished", t.name)
	}
	t.done = true
	part := t.f.Name()
	if err := unix.Fsync(int(t.f.Fd())); err != nil {
		t.f.Close()
		os.Remove(part)
		return fmt.Errorf("sync %s: %w", part, err)
	}
	if err := t.f.Close(); err != nil {
		os.Remove(part)
		return err
	}
	final := fp.Join(t.d.Dir, t.name)
	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return err
	}
	if err := syncDir(t.d.Dir); err != nil {
		return err
	}
	return t.d.swap(t.name)
}

func (t *dirTarget) Discard() error {
	if t.done {
		return nil
	}
	t.done = true
	t.f.Close()
	return os.Remove(t.f.Name())
}

// swap points "current" at name and "previous" at the old current, then
// deletes images neither link refers to.
func (d *DirPartition) swap(name string) error {
	old, _ := os.Readlink(fp.Join(d.Dir, CurrentLink))
	if err := d.setLink(CurrentLink, name); err != nil {
		return err
	}
	if old != "" && old != name {
		if err := d.setLink(PreviousLink, old); err != nil {
			//current is already switched; losing the rollback link is not fatal
			log.Logf("setting %s link: %s", PreviousLink, err)
		}
	}
	if err := syncDir(d.Dir); err != nil {
		return err
	}
	d.prune(name, old)
	return nil
}

// setLink replaces a symlink atomically via rename.
func (d *DirPartition) setLink(link, target string) error {
	tmp := fp.Join(d.Dir, link+".new")
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, fp.Join(d.Dir, link))
}

func (d *DirPartition) prune(keep ...string) {
	imgs, _ := fp.Glob(fp.Join(d.Dir, imgPrefix+"*"+imgSuffix))
outer:
	for _, img := range imgs {
		base := fp.Base(img)
		if strings.HasSuffix(base, partSuffix) {
			continue
		}
		for _, k := range keep {
			if base == k {
				continue outer
			}
		}
		log.Logf("removing old image %s", base)
		if err := os.Remove(img); err != nil {
			log.Logf("remove %s: %s", img, err)
		}
	}
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}
