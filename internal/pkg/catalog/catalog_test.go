package catalog

import (
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database/dbtest"
)

func newTestCatalog(t *testing.T) (*Catalog, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(client)
	t.Cleanup(func() {
		_ = client.Close()
		cache.SetClient(nil)
	})

	db := dbtest.NewTestDB(t)
	repos := repository.NewRepositories(db)

	beginner := &models.Course{SeqNo: 1, URL: "angular-for-beginners", Description: "Angular for Beginners", Price: 50}
	beginner.SetCategories([]string{"beginner"})
	advanced := &models.Course{SeqNo: 2, URL: "rxjs-in-practice", Description: "RxJs In Practice", Price: 60}
	advanced.SetCategories([]string{"ADVANCED"})
	require.NoError(t, repos.Course.Create(beginner))
	require.NoError(t, repos.Course.Create(advanced))
	require.NoError(t, repos.Course.CreateLesson(&models.Lesson{CourseID: advanced.ID, SeqNo: 1, Description: "Intro"}))

	return New(repos.Course, repos.User), db, mr
}

func TestListAnonymousAndCategories(t *testing.T) {
	c, _, mr := newTestCatalog(t)

	all, err := c.List("", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "angular-for-beginners", all[0].URL)
	assert.Equal(t, []string{"BEGINNER"}, all[0].CategoryNames)
	assert.False(t, all[0].Owned)
	assert.True(t, mr.Exists(CacheKey))

	adv, err := c.List("advanced", "")
	require.NoError(t, err)
	require.Len(t, adv, 1)
	assert.Equal(t, "rxjs-in-practice", adv[0].URL)
}

func TestListServesFromCache(t *testing.T) {
	c, db, _ := newTestCatalog(t)

	_, err := c.All()
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Course{SeqNo: 3, URL: "ngrx", Description: "NgRx"}).Error)

	cached, err := c.All()
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	c.Invalidate()
	fresh, err := c.All()
	require.NoError(t, err)
	assert.Len(t, fresh, 3)
}

func TestOwnershipFlags(t *testing.T) {
	c, db, _ := newTestCatalog(t)
	require.NoError(t, db.Create(&models.User{ID: "uid-1", Plan: models.PlanFree}).Error)
	courses, err := c.All()
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.OwnedCourse{UserID: "uid-1", CourseID: courses[1].ID}).Error)

	list, err := c.List("", "uid-1")
	require.NoError(t, err)
	assert.False(t, list[0].Owned)
	assert.True(t, list[1].Owned)

	// Unknown users are free users.
	list, err = c.List("", "uid-unknown")
	require.NoError(t, err)
	assert.False(t, list[1].Owned)

	require.NoError(t, db.Create(&models.User{ID: "uid-2", Plan: models.PlanPremium}).Error)
	list, err = c.List("", "uid-2")
	require.NoError(t, err)
	assert.True(t, list[0].Owned)
	assert.True(t, list[1].Owned)
}

func TestByURLListsLessonsOnlyForOwners(t *testing.T) {
	c, db, _ := newTestCatalog(t)
	require.NoError(t, db.Create(&models.User{ID: "uid-max", Plan: models.PlanPremiumMax}).Error)

	d, err := c.ByURL("rxjs-in-practice", "")
	require.NoError(t, err)
	assert.Empty(t, d.Lessons)

	d, err = c.ByURL("rxjs-in-practice", "uid-max")
	require.NoError(t, err)
	require.Len(t, d.Lessons, 1)
	assert.Equal(t, "Intro", d.Lessons[0].Description)

	_, err = c.ByURL("missing", "")
	assert.True(t, errors.Is(err, ErrCourseNotFound))
	_, err = c.ByID(9999, "")
	assert.True(t, errors.Is(err, ErrCourseNotFound))
}

func TestOwnedCourseIDsEmpty(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	ids, err := c.OwnedCourseIDs("nobody")
	require.NoError(t, err)
	assert.Equal(t, []uint{}, ids)
}
