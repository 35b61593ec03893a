package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/schollz/progressbar/v3"
)

const (
	// ReportFileName 运行报告文件名
	ReportFileName = "report.json"
	// FailedAssetsFileName 失败资源明细文件名
	FailedAssetsFileName = "failed_assets.json"
)

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// WriteRunReport 写入运行报告, 有失败资源时另写一份明细
func (r *Reporter) WriteRunReport(report *models.RunReport) ([]string, error) {
	written := []string{ReportFileName}
	if err := r.saveJSON(ReportFileName, report); err != nil {
		return nil, err
	}

	if failed := report.FailedAssets(); len(failed) > 0 {
		if err := r.saveJSON(FailedAssetsFileName, failed); err != nil {
			return nil, err
		}
		written = append(written, FailedAssetsFileName)
	}

	Debugf("报告已生成: %s", r.outputDir)
	return written, nil
}

func (r *Reporter) saveJSON(filename string, data interface{}) error {
	path := filepath.Join(r.outputDir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return &models.EmitError{Path: path, Cause: err}
	}
	return nil
}

// NewProgressBar 创建进度条, visible为false时不输出
func NewProgressBar(max int, description string, visible bool) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	}
	if !visible {
		opts = append(opts, progressbar.OptionSetWriter(io.Discard), progressbar.OptionSetVisibility(false))
	}
	return progressbar.NewOptions(max, opts...)
}
