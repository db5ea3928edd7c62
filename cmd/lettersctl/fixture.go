package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/id"
	"github.com/armyletters/letters-server/internal/validation"
)

// fixture is a YAML file of letters for seeding a store:
//
//	letters:
//	  - name: Ana
//	    member: Jimin
//	    message: Thank you for Filter.
//	    country: Peru
//	    age: 36h
//	    likes: 4
//	    song: {id: 4iV5W9uYEdYUVa79Axb7Rh, name: Filter, artist: Jimin}
type fixture struct {
	Letters []fixtureLetter `yaml:"letters"`
}

type fixtureLetter struct {
	Name    string `yaml:"name"`
	Member  string `yaml:"member"`
	Message string `yaml:"message"`
	Country string `yaml:"country"`
	// Age places the letter in the past, relative to the seed time.
	Age        time.Duration `yaml:"age"`
	Likes      int           `yaml:"likes"`
	ColorClass string        `yaml:"color_class"`
	Song       *fixtureSong  `yaml:"song"`
}

type fixtureSong struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Artist     string `yaml:"artist"`
	AlbumCover string `yaml:"album_cover"`
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- fixture path is a command argument
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// letters validates every entry and builds the stored letters. Likes come
// from synthetic identities so the count always matches the set.
func (f *fixture) letters(now time.Time) ([]*domain.Letter, error) {
	v := validation.New()
	out := make([]*domain.Letter, 0, len(f.Letters))

	for i, fl := range f.Letters {
		member, ok := domain.ParseMember(fl.Member)
		if !ok {
			member = domain.Member(fl.Member)
		}
		d := domain.Draft{
			Name:    fl.Name,
			Member:  member,
			Message: fl.Message,
			Country: fl.Country,
		}
		if fl.Song != nil {
			d.Track = &domain.TrackSnapshot{
				ID:         fl.Song.ID,
				Name:       fl.Song.Name,
				Artist:     fl.Song.Artist,
				AlbumCover: fl.Song.AlbumCover,
			}
		}
		if err := v.Validate(d); err != nil {
			return nil, fmt.Errorf("letter %d (%s): %w", i+1, fl.Name, describeDraftError(err))
		}
		if fl.Likes < 0 || fl.Age < 0 {
			return nil, fmt.Errorf("letter %d (%s): likes and age must not be negative", i+1, fl.Name)
		}

		letterID, err := id.Generate(id.PrefixLetter)
		if err != nil {
			return nil, err
		}
		color := fl.ColorClass
		if !domain.ValidColorClass(color) {
			color = domain.RandomColorClass()
		}

		l := &domain.Letter{
			ID:         letterID,
			Name:       d.Name,
			Member:     d.Member,
			Message:    d.Message,
			Country:    d.Country,
			Timestamp:  now.Add(-fl.Age).UTC(),
			ColorClass: color,
			LikedBy:    make([]string, 0, fl.Likes),
			Track:      d.Track,
		}
		for n := range fl.Likes {
			l.LikedBy = append(l.LikedBy, fmt.Sprintf("seed-%s-%d", letterID, n))
		}
		l.Likes = len(l.LikedBy)
		out = append(out, l)
	}
	return out, nil
}
