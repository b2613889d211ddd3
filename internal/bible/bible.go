// Package bible holds the canonical book table and the verse reference value
// type everything else keys on. The table is static KJV versification; all
// lookups are pure.
package bible

import (
	"fmt"
	"strings"
)

// Book is one book of the canon with its per-chapter verse counts.
type Book struct {
	Name     string `json:"name"`
	Chapters []int  `json:"chapters"`
}

// ChapterCount returns the number of chapters in the book.
func (b Book) ChapterCount() int { return len(b.Chapters) }

// VerseCount returns the number of verses in the given 1-based chapter, or 0
// when the chapter does not exist.
func (b Book) VerseCount(chapter int) int {
	if chapter < 1 || chapter > len(b.Chapters) {
		return 0
	}
	return b.Chapters[chapter-1]
}

// Books returns the full canon in order. Callers must treat the slice as
// read-only.
func Books() []Book { return canon }

// Count returns the number of books in the canon.
func Count() int { return len(canon) }

// At returns the book at the given canon position (0-based, wrapped), so a
// rotation index can address the canon directly.
func At(i int) Book {
	n := len(canon)
	i %= n
	if i < 0 {
		i += n
	}
	return canon[i]
}

// Lookup finds a book by name, case-insensitively.
func Lookup(name string) (Book, bool) {
	name = strings.TrimSpace(name)
	for _, b := range canon {
		if strings.EqualFold(b.Name, name) {
			return b, true
		}
	}
	return Book{}, false
}

// Reference identifies a single verse. Chapter and Verse are 1-based; a
// Reference produced by Clamp always exists in the canon table.
type Reference struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
}

// String renders the usual citation form, e.g. "John 14:5".
func (r Reference) String() string {
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, r.Verse)
}

// Valid reports whether the reference exists in the canon table.
func (r Reference) Valid() bool {
	b, ok := Lookup(r.Book)
	if !ok {
		return false
	}
	return r.Chapter >= 1 && r.Verse >= 1 && r.Verse <= b.VerseCount(r.Chapter)
}

// Clamp maps an arbitrary chapter/verse pair into the book's bounds: a
// chapter past the end becomes the last chapter, a verse past the end of the
// (clamped) chapter becomes that chapter's last verse, and values below 1
// become 1. The result always names an existing verse.
func Clamp(b Book, chapter, verse int) Reference {
	if chapter < 1 {
		chapter = 1
	}
	if chapter > b.ChapterCount() {
		chapter = b.ChapterCount()
	}
	if verse < 1 {
		verse = 1
	}
	if max := b.VerseCount(chapter); verse > max {
		verse = max
	}
	return Reference{Book: b.Name, Chapter: chapter, Verse: verse}
}
