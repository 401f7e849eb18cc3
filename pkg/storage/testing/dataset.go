package testing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
)

// Object is one published file of a Dataset.
type Object struct {
	Hash  catalog.Hash
	ID    int32 // negative for none
	Path  string
	Entry catalog.RootEntry
	Data  []byte // nil publishes the hash without bytes
}

// Dataset is a backend-neutral description of a small extracted build.
type Dataset struct {
	Build   string
	Objects []Object
	Install []catalog.InstallEntry
}

// Files renders d in the on-disk layout shared by the filesystem and S3
// backends: manifest files at the top, bytes under objects/.
//
// Names are written as "id;path" lines, so an Object with a Path must carry
// an ID.
func (d Dataset) Files() map[string][]byte {
	files := make(map[string][]byte)

	var root, list, install strings.Builder
	for _, o := range d.Objects {
		fmt.Fprintf(&root, "%s;%s;%d;%d\n", o.Hash, idField(o.ID), o.Entry.LocaleFlags, o.Entry.ContentFlags)
		if o.Path != "" && o.ID >= 0 {
			fmt.Fprintf(&list, "%d;%s\n", o.ID, o.Path)
		}
		if o.Data != nil {
			files[storage.ObjectKey(o.Hash)] = o.Data
		}
	}
	for _, e := range d.Install {
		fmt.Fprintf(&install, "%s;%s;%s\n", e.Name, e.Hash, strings.Join(e.Tags, ","))
	}

	files[storage.RootFile] = []byte(root.String())
	files[storage.ListFile] = []byte(list.String())
	if install.Len() > 0 {
		files[storage.InstallFile] = []byte(install.String())
	}
	if d.Build != "" {
		files[storage.BuildFile] = []byte(d.Build + "\n")
	}
	return files
}

func idField(id int32) string {
	if id < 0 {
		return ""
	}
	return fmt.Sprint(id)
}

// SortedKeys returns the keys of files in lexical order.
func SortedKeys(files map[string][]byte) []string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fixture is the dataset every backend suite run starts from.
//
// It covers a named file with two locale variants, a file without bytes,
// a file without a name and an install entry per platform.
func Fixture() Dataset {
	return Dataset{
		Build: "WOW-99999patch11.0.2_Retail",
		Objects: []Object{
			{
				Hash:  0x00000000000000AA,
				ID:    100,
				Path:  `Interface\Icons\Ability_Ambush.blp`,
				Entry: catalog.RootEntry{LocaleFlags: catalog.LocaleEnUS},
				Data:  []byte("BLP2 icon bytes"),
			},
			{
				Hash:  0x00000000000000AA,
				ID:    100,
				Entry: catalog.RootEntry{LocaleFlags: catalog.LocaleDeDE, ContentFlags: catalog.ContentHighRes},
			},
			{
				Hash:  0x00000000000000BB,
				ID:    200,
				Path:  `Sound\Music\Theme.mp3`,
				Entry: catalog.RootEntry{LocaleFlags: catalog.LocaleEnUS},
			},
			{
				Hash:  0x00000000000000CC,
				ID:    300,
				Entry: catalog.RootEntry{LocaleFlags: catalog.LocaleEnUS},
				Data:  []byte("OggS unnamed"),
			},
			{
				Hash:  0x00000000000000DD,
				ID:    -1,
				Entry: catalog.RootEntry{LocaleFlags: catalog.LocaleEnUS, ContentFlags: catalog.ContentInstall},
				Data:  []byte("launcher"),
			},
		},
		Install: []catalog.InstallEntry{
			{Name: "Wow.exe", Hash: 0xDD, Tags: []string{"Windows", "x86_64", "US"}},
			{Name: `World of Warcraft.app\Contents\Info.plist`, Hash: 0xEE, Tags: []string{"OSX", "x86_64", "US"}},
			{Name: "WowB.exe", Hash: 0xDD, Tags: []string{"Windows", "x86_32", "US"}},
		},
	}
}
