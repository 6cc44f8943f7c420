package config

import (
	"fmt"
	"os"

	"lunchbot/commands"
	"lunchbot/models"

	"gopkg.in/yaml.v3"
)

type seedRestaurant struct {
	Name     string   `yaml:"name"`
	Address  string   `yaml:"address"`
	Duration int      `yaml:"duration"`
	Rating   int      `yaml:"rating"`
	Price    int      `yaml:"price"`
	Tags     []string `yaml:"tags"`
}

type seedFile struct {
	Restaurants []seedRestaurant `yaml:"restaurants"`
}

// LoadSeed reads a YAML catalog seed:
//
//	restaurants:
//	  - name: Soba Ichi
//	    address: 1-2-3 Kanda
//	    duration: 20
//	    rating: 4
//	    price: 900
//	    tags: [japanese, noodles]
func LoadSeed(path string) ([]models.Restaurant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	restaurants := make([]models.Restaurant, 0, len(f.Restaurants))
	for i, s := range f.Restaurants {
		r := models.Restaurant{
			Name:            s.Name,
			Address:         s.Address,
			DurationMinutes: s.Duration,
			Rating:          s.Rating,
			Price:           s.Price,
			Tags:            commands.NormalizeTags(s.Tags),
			AddedBy:         "seed",
		}
		if err := commands.ValidateRestaurant(r); err != nil {
			return nil, fmt.Errorf("seed restaurant #%d (%s): %w", i+1, s.Name, err)
		}
		restaurants = append(restaurants, r)
	}
	return restaurants, nil
}
