package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/assets"
	"github.com/ManuelReschke/CourseFox/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
)

//go:embed data/courses.json
var defaultCourses []byte

type courseTitles struct {
	Description     string `json:"description"`
	LongDescription string `json:"longDescription"`
}

type seedCourse struct {
	ID           uint         `json:"id"`
	Titles       courseTitles `json:"titles"`
	IconURL      string       `json:"iconUrl"`
	LessonsCount int          `json:"lessonsCount"`
	Categories   []string     `json:"categories"`
	SeqNo        int          `json:"seqNo"`
	URL          string       `json:"url"`
	Price        int64        `json:"price"`
	Promo        bool         `json:"promo"`
}

type seedLesson struct {
	ID          uint   `json:"id"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	SeqNo       int    `json:"seqNo"`
	CourseID    uint   `json:"courseId"`
	VideoID     string `json:"videoId"`
}

type seedData struct {
	Courses []seedCourse `json:"courses"`
	Lessons []seedLesson `json:"lessons"`
}

// parseSeedData decodes the seed file and sorts courses by seqNo.
func parseSeedData(raw []byte) (*seedData, error) {
	var data seedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	sort.SliceStable(data.Courses, func(i, j int) bool {
		return data.Courses[i].SeqNo < data.Courses[j].SeqNo
	})
	return &data, nil
}

// lessonsFor returns the lessons of the seed course with the given file id.
func (d *seedData) lessonsFor(courseID uint) []seedLesson {
	var out []seedLesson
	for _, l := range d.Lessons {
		if l.CourseID == courseID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SeqNo < out[j].SeqNo })
	return out
}

// toModel drops the file id; the database assigns a new one.
func (c seedCourse) toModel() *models.Course {
	course := &models.Course{
		SeqNo:           c.SeqNo,
		URL:             c.URL,
		Description:     c.Titles.Description,
		LongDescription: c.Titles.LongDescription,
		IconURL:         c.IconURL,
		Price:           c.Price,
		Promo:           c.Promo,
	}
	course.SetCategories(c.Categories)
	return course
}

type iconPublisher interface {
	PublishIcon(ctx context.Context, courseURL, iconURL string) (*assets.Published, error)
}

type courseSeeder struct {
	courses   repository.CourseRepository
	catalog   *catalog.Catalog
	publisher iconPublisher
	out       io.Writer
}

func (s *courseSeeder) seed(ctx context.Context, data *seedData) (int, error) {
	created := 0
	for _, sc := range data.Courses {
		course := sc.toModel()
		if err := course.Validate(); err != nil {
			return created, fmt.Errorf("course %q: %w", sc.URL, err)
		}
		fmt.Fprintf(s.out, "Adding course %s\n", course.Description)
		if err := s.courses.Create(course); err != nil {
			return created, fmt.Errorf("create course %q: %w", sc.URL, err)
		}
		created++

		lessons := data.lessonsFor(sc.ID)
		fmt.Fprintf(s.out, "Adding %d lessons to %s\n", len(lessons), course.Description)
		for _, sl := range lessons {
			lesson := &models.Lesson{
				CourseID:    course.ID,
				SeqNo:       sl.SeqNo,
				Description: sl.Description,
				Duration:    sl.Duration,
				VideoID:     sl.VideoID,
			}
			if err := s.courses.CreateLesson(lesson); err != nil {
				return created, fmt.Errorf("create lesson %q: %w", sl.Description, err)
			}
		}

		if s.publisher != nil && course.IconURL != "" {
			published, err := s.publisher.PublishIcon(ctx, course.URL, course.IconURL)
			if err != nil {
				fmt.Fprintf(s.out, "Skipping artwork for %s: %v\n", course.URL, err)
				continue
			}
			if err := s.courses.UpdateAssets(course.ID, published.IconURL, published.ThumbnailURL); err != nil {
				return created, err
			}
		}
	}
	if s.catalog != nil {
		s.catalog.Invalidate()
	}
	return created, nil
}

func coursesCmd() *cobra.Command {
	var (
		file         string
		uploadAssets bool
	)

	cmd := &cobra.Command{
		Use:   "courses",
		Short: "Insert the course catalog with its lessons",
		Long: `Insert the course catalog with its lessons.

Courses are inserted in seqNo order and receive new database ids. With
--upload-assets every course icon is copied to S3 together with a thumbnail.

Examples:
  seed courses
  seed courses --file ./courses.json --upload-assets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := defaultCourses
			if file != "" {
				var err error
				raw, err = os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
			}
			data, err := parseSeedData(raw)
			if err != nil {
				return err
			}

			announceTarget(cmd)
			openDatabase()

			repository.InitializeFactory(database.GetDB())
			repos := repository.GetGlobalFactory().GetRepositories()
			seeder := &courseSeeder{
				courses: repos.Course,
				catalog: catalog.New(repos.Course, repos.User),
				out:     cmd.OutOrStdout(),
			}
			if uploadAssets {
				cfg, err := assets.LoadConfig()
				if err != nil {
					return err
				}
				client, err := assets.NewClient(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				seeder.publisher = assets.NewPublisher(client, assets.HTTPFetch)
			}

			n, err := seeder.seed(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("data upload failed after %d courses: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nData upload completed: %d courses.\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (defaults to the embedded catalog)")
	cmd.Flags().BoolVar(&uploadAssets, "upload-assets", false, "copy course icons and thumbnails to S3")

	return cmd
}
