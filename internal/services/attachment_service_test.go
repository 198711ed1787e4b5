package services_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"strings"
	"testing"

	"messaging_backend/internal/imageprocessor"
	"messaging_backend/internal/models"
	"messaging_backend/internal/models/chat"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services"
	"messaging_backend/internal/storage"
	"messaging_backend/pkg/apperrors"
	"messaging_backend/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type attachmentFixture struct {
	db          *gorm.DB
	store       storage.Storage
	attachments services.AttachmentService
	sender      *models.User
	other       *models.User
	message     *chat.Message
}

func newAttachmentFixture(t *testing.T, settings services.AttachmentSettings) *attachmentFixture {
	t.Helper()

	db := helpers.NewTestDB(t)
	store, err := storage.NewLocalStorage(storage.Config{BasePath: t.TempDir(), BaseURL: "/files"})
	require.NoError(t, err)

	sender := helpers.CreateUser(t, db, models.UserRoleHost)
	other := helpers.CreateUser(t, db, models.UserRoleGuest)
	conversation := helpers.CreateConversation(t, db, chat.ConversationDirect, sender, other)
	message := helpers.CreateMessage(t, db, conversation, sender, "see attached")

	return &attachmentFixture{
		db:    db,
		store: store,
		attachments: services.NewAttachmentService(
			repositories.NewConversationRepository(),
			repositories.NewMessageRepository(),
			store,
			imageprocessor.NewProcessor(80, 32),
			settings,
		),
		sender:  sender,
		other:   other,
		message: message,
	}
}

func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(10 << 20)
	require.NoError(t, err)
	return form.File["file"][0]
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAttachmentService_UploadDocument(t *testing.T) {
	f := newAttachmentFixture(t, services.DefaultAttachmentSettings())
	ctx := context.Background()

	resp, err := f.attachments.Upload(ctx, f.db, f.sender.ID, f.message.ID, fileHeader(t, "notes.txt", []byte("plain text body")))
	require.NoError(t, err)

	assert.Equal(t, "document", resp.FileType)
	assert.Equal(t, int64(len("plain text body")), resp.FileSize)
	assert.True(t, strings.HasPrefix(resp.MimeType, "text/plain"))
	assert.False(t, resp.HasThumbnail)

	stored, err := f.attachments.Get(f.db, resp.ID)
	require.NoError(t, err)
	exists, err := f.store.Exists(ctx, stored.FilePath)
	require.NoError(t, err)
	assert.True(t, exists)

	list, err := f.attachments.ListForMessage(f.db, f.message.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAttachmentService_UploadImageBuildsThumbnail(t *testing.T) {
	f := newAttachmentFixture(t, services.DefaultAttachmentSettings())
	ctx := context.Background()

	resp, err := f.attachments.Upload(ctx, f.db, f.sender.ID, f.message.ID, fileHeader(t, "photo.png", pngBytes(t, 64, 48)))
	require.NoError(t, err)

	assert.Equal(t, "image", resp.FileType)
	assert.Equal(t, "image/png", resp.MimeType)
	require.NotNil(t, resp.Width)
	assert.Equal(t, 64, *resp.Width)
	assert.Equal(t, 48, *resp.Height)
	assert.True(t, resp.HasThumbnail)

	url, err := f.attachments.GetDownloadURL(ctx, f.db, resp.ID)
	require.NoError(t, err)
	assert.Contains(t, url.URL, "/files/attachments/")
	assert.Contains(t, url.ThumbnailURL, "thumb.jpg")
}

func TestAttachmentService_UploadRejects(t *testing.T) {
	f := newAttachmentFixture(t, services.AttachmentSettings{MaxSize: 8})
	ctx := context.Background()

	_, err := f.attachments.Upload(ctx, f.db, f.sender.ID, f.message.ID, fileHeader(t, "tool.exe", []byte("MZ")))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	_, err = f.attachments.Upload(ctx, f.db, f.sender.ID, f.message.ID, fileHeader(t, "big.txt", []byte("more than eight bytes")))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	_, err = f.attachments.Upload(ctx, f.db, f.other.ID, f.message.ID, fileHeader(t, "a.txt", []byte("hi")))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = f.attachments.Upload(ctx, f.db, f.sender.ID, "missing", fileHeader(t, "a.txt", []byte("hi")))
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)

	require.NoError(t, f.db.Model(&chat.Conversation{}).Where("id = ?", f.message.ConversationID).
		Update("allow_file_sharing", false).Error)
	_, err = f.attachments.Upload(ctx, f.db, f.sender.ID, f.message.ID, fileHeader(t, "a.txt", []byte("hi")))
	assert.ErrorIs(t, err, apperrors.ErrFileSharingOff)
}

func TestAttachmentService_SoftDelete(t *testing.T) {
	f := newAttachmentFixture(t, services.DefaultAttachmentSettings())
	ctx := context.Background()

	resp, err := f.attachments.Upload(ctx, f.db, f.sender.ID, f.message.ID, fileHeader(t, "a.txt", []byte("hi")))
	require.NoError(t, err)

	require.NoError(t, f.attachments.SoftDelete(f.db, f.sender.ID, resp.ID))

	list, err := f.attachments.ListForMessage(f.db, f.message.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = f.attachments.SoftDelete(f.db, f.sender.ID, resp.ID)
	assert.ErrorIs(t, err, apperrors.ErrAttachmentNotFound)
}
