package modelsync

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"
)

type testItem struct {
	id   int64
	name string
}

func (self *testItem) GetId() int64 {
	return self.id
}

func testItemIds(page *Page[*testItem]) []int64 {
	ids := []int64{}
	for _, item := range page.Data {
		ids = append(ids, item.id)
	}
	return ids
}

func TestPageInsertAtTopFirstPage(t *testing.T) {
	fetches := 0
	cache := NewPageCache[*testItem](3, func(ctx context.Context, page int, perPage int) (*Page[*testItem], error) {
		fetches += 1
		return &Page[*testItem]{
			Data:       []*testItem{{id: 3}, {id: 2}, {id: 1}},
			TotalCount: 3,
			TotalPages: 1,
		}, nil
	})

	// nothing fetched yet
	err := cache.InsertAtTop(context.Background(), &testItem{id: 9})
	assert.Equal(t, err, nil)
	assert.Equal(t, cache.Page(), nil)

	err = cache.Fetch(context.Background(), 1)
	assert.Equal(t, err, nil)
	assert.Equal(t, fetches, 1)

	err = cache.InsertAtTop(context.Background(), &testItem{id: 4})
	assert.Equal(t, err, nil)
	assert.Equal(t, fetches, 1)

	page := cache.Page()
	assert.Equal(t, testItemIds(page), []int64{4, 3, 2})
	assert.Equal(t, page.TotalCount, 4)
	assert.Equal(t, page.TotalPages, 2)
}

func TestPageInsertAtTopOtherPage(t *testing.T) {
	var fetchedPages []int
	cache := NewPageCache[*testItem](3, func(ctx context.Context, page int, perPage int) (*Page[*testItem], error) {
		fetchedPages = append(fetchedPages, page)
		assert.Equal(t, perPage, 3)
		return &Page[*testItem]{
			Data:       []*testItem{{id: 1}},
			TotalCount: 4,
			TotalPages: 2,
		}, nil
	})

	err := cache.Fetch(context.Background(), 2)
	assert.Equal(t, err, nil)

	err = cache.InsertAtTop(context.Background(), &testItem{id: 5})
	assert.Equal(t, err, nil)
	assert.Equal(t, fetchedPages, []int{2, 2})
	assert.Equal(t, testItemIds(cache.Page()), []int64{1})
	assert.Equal(t, cache.PageNumber(), 2)
}

func TestPageInsertAtTopExisting(t *testing.T) {
	fetches := 0
	cache := NewPageCache[*testItem](3, func(ctx context.Context, page int, perPage int) (*Page[*testItem], error) {
		fetches += 1
		return nil, context.Canceled
	})
	cache.SetPage(1, &Page[*testItem]{
		Data:       []*testItem{{id: 4, name: "first"}, {id: 3}, {id: 2}},
		TotalCount: 4,
		TotalPages: 2,
	})

	err := cache.InsertAtTop(context.Background(), &testItem{id: 4, name: "again"})
	assert.Equal(t, err, nil)
	page := cache.Page()
	assert.Equal(t, testItemIds(page), []int64{4, 3, 2})
	assert.Equal(t, page.Data[0].name, "again")
	assert.Equal(t, page.TotalCount, 4)
	assert.Equal(t, page.TotalPages, 2)

	// already on a later page, no refetch
	cache.SetPage(2, &Page[*testItem]{
		Data:       []*testItem{{id: 1}},
		TotalCount: 4,
		TotalPages: 2,
	})
	err = cache.InsertAtTop(context.Background(), &testItem{id: 1, name: "again"})
	assert.Equal(t, err, nil)
	assert.Equal(t, fetches, 0)
	assert.Equal(t, cache.Page().Data[0].name, "again")
}

func TestPageReplace(t *testing.T) {
	cache := NewPageCache[*testItem](3, nil)
	assert.Equal(t, cache.Replace(&testItem{id: 1}), false)

	cache.SetPage(1, &Page[*testItem]{
		Data:       []*testItem{{id: 2, name: "running"}, {id: 1, name: "done"}},
		TotalCount: 2,
		TotalPages: 1,
	})

	assert.Equal(t, cache.Replace(&testItem{id: 2, name: "done"}), true)
	assert.Equal(t, cache.Replace(&testItem{id: 7, name: "done"}), false)

	page := cache.Page()
	assert.Equal(t, testItemIds(page), []int64{2, 1})
	assert.Equal(t, page.Data[0].name, "done")
	assert.Equal(t, page.TotalCount, 2)
}

func TestPageCopy(t *testing.T) {
	cache := NewPageCache[*testItem](2, nil)
	cache.SetPage(1, &Page[*testItem]{
		Data:       []*testItem{{id: 1}},
		TotalCount: 1,
		TotalPages: 1,
	})

	page := cache.Page()
	page.Data = append(page.Data, &testItem{id: 2})
	assert.Equal(t, len(cache.Page().Data), 1)
}
