package upload

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsb0315/image-server/internal/config"
	"github.com/jsb0315/image-server/internal/storage"
)

type testFile struct {
	name        string
	contentType string
	content     string
}

func buildForm(t *testing.T, files ...testFile) *multipart.Form {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="`+f.name+`"`)
		hdr.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = io.WriteString(part, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form
}

func newTestProcessor(t *testing.T) (*Processor, *storage.Store) {
	t.Helper()
	cfg := config.Config{
		MaxFileSize:       1 << 20,
		MaxFilesPerUpload: 3,
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"},
		AllowedMIMETypes:  []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp"},
	}
	store, err := storage.New(t.TempDir(), cfg.AllowedExtensions)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProcessor(cfg, store, logger), store
}

func TestProcessStoresBatch(t *testing.T) {
	p, store := newTestProcessor(t)
	form := buildForm(t,
		testFile{"one.png", "image/png", "aaaa"},
		testFile{"two.jpg", "image/jpeg", "bb"},
	)

	files, uploadErrs, err := p.Process(form, "", "http://localhost:31533")
	require.NoError(t, err)
	assert.Empty(t, uploadErrs)
	require.Len(t, files, 2)

	assert.Equal(t, "one.png", files[0].Filename)
	assert.Equal(t, "one.png", files[0].OriginalName)
	assert.Equal(t, "http://localhost:31533/images/one.png", files[0].URL)
	assert.Equal(t, int64(4), files[0].Size)

	b, err := os.ReadFile(filepath.Join(store.Root(), "two.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "bb", string(b))
}

func TestProcessMovesIntoFolder(t *testing.T) {
	p, store := newTestProcessor(t)
	form := buildForm(t, testFile{"pic.png", "image/png", "x"})

	files, _, err := p.Process(form, "album", "http://h")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "album", files[0].Folder)
	assert.Equal(t, "http://h/images/album/pic.png", files[0].URL)

	_, err = os.Stat(filepath.Join(store.Root(), "album", "pic.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Root(), "pic.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessSanitizesNames(t *testing.T) {
	p, store := newTestProcessor(t)
	form := buildForm(t, testFile{"my photo!.png", "image/png", "x"})

	files, _, err := p.Process(form, "", "http://h")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "my_photo.png", files[0].Filename)
	assert.Equal(t, "my photo!.png", files[0].OriginalName)

	_, err = os.Stat(filepath.Join(store.Root(), "my_photo.png"))
	assert.NoError(t, err)
}

func TestProcessRejectsEmptyBatch(t *testing.T) {
	p, _ := newTestProcessor(t)
	form := buildForm(t)

	_, _, err := p.Process(form, "", "http://h")
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestProcessRejectsTooManyFiles(t *testing.T) {
	p, _ := newTestProcessor(t)
	form := buildForm(t,
		testFile{"1.png", "image/png", "x"},
		testFile{"2.png", "image/png", "x"},
		testFile{"3.png", "image/png", "x"},
		testFile{"4.png", "image/png", "x"},
	)

	_, _, err := p.Process(form, "", "http://h")
	var tooMany *TooManyFilesError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 3, tooMany.Max)
}

func TestProcessRejectsOversizedFile(t *testing.T) {
	p, store := newTestProcessor(t)
	form := buildForm(t,
		testFile{"small.png", "image/png", "x"},
		testFile{"big.png", "image/png", strings.Repeat("a", (1<<20)+1)},
	)

	_, _, err := p.Process(form, "", "http://h")
	var tooLarge *FileTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 1, tooLarge.MaxMB)

	// Whole-batch rejection: the small file must not have been written.
	_, err = os.Stat(filepath.Join(store.Root(), "small.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessRejectsFilteredTypes(t *testing.T) {
	p, _ := newTestProcessor(t)

	t.Run("bad mime type", func(t *testing.T) {
		form := buildForm(t, testFile{"page.png", "text/html", "x"})
		_, _, err := p.Process(form, "", "http://h")
		var filtered *FilterError
		assert.ErrorAs(t, err, &filtered)
	})

	t.Run("bad extension", func(t *testing.T) {
		form := buildForm(t, testFile{"vector.svg", "image/png", "x"})
		_, _, err := p.Process(form, "", "http://h")
		var filtered *FilterError
		assert.ErrorAs(t, err, &filtered)
	})
}

func TestProcessSingle(t *testing.T) {
	p, store := newTestProcessor(t)
	form := buildForm(t, testFile{"solo.png", "image/png", "abc"})

	file, err := p.ProcessSingle(form, "api-uploads", "http://h")
	require.NoError(t, err)
	assert.Equal(t, "solo.png", file.Filename)
	assert.Equal(t, "api-uploads", file.Folder)
	assert.Equal(t, int64(3), file.Size)

	_, err = os.Stat(filepath.Join(store.Root(), "api-uploads", "solo.png"))
	assert.NoError(t, err)
}

func TestProcessSingleNoFile(t *testing.T) {
	p, _ := newTestProcessor(t)
	_, err := p.ProcessSingle(buildForm(t), "", "http://h")
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestImageURL(t *testing.T) {
	assert.Equal(t, "http://h/images/a.png", ImageURL("http://h", "", "a.png"))
	assert.Equal(t, "http://h/images/f/a.png", ImageURL("http://h", "f", "a.png"))
}
