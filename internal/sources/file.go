package sources

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
)

// FileSource 读取本地保存的HTML, 相对引用按传入的基准URL解析
type FileSource struct {
	path string
}

// NewFileSource 创建文件页面源
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name 页面源名称
func (f *FileSource) Name() string {
	return string(models.SourceFile)
}

// Render 读取文件内容
func (f *FileSource) Render(ctx context.Context, baseURL string) (*models.PageSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := utils.ValidateURL(baseURL); err != nil {
		return nil, fmt.Errorf("file 页面源的基准URL无效: %w", err)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("读取HTML文件失败: %w", err)
	}
	utils.Infof("📄 读取本地HTML: %s (%d 字节)", f.path, len(data))

	return checkSnapshot(&models.PageSnapshot{
		URL:        baseURL,
		FinalURL:   baseURL,
		HTML:       string(data),
		SourceName: f.Name(),
		CapturedAt: time.Now(),
	})
}
