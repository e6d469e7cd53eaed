package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  Reflow 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)

	if !strings.HasPrefix(goVersion, "go1.23") &&
		!strings.HasPrefix(goVersion, "go1.24") {
		fmt.Println("⚠️  警告: 建议使用Go 1.23+版本")
	}

	// 检查操作系统
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查项目依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在整理依赖...")
		cmd := exec.Command("go", "mod", "tidy")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod tidy失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖整理完成")
		}

		fmt.Println("正在下载依赖...")
		cmd = exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/reflow",
		"internal/core",
		"internal/crawlers",
		"internal/config",
		"internal/utils",
		"internal/models",
		"scripts",
		"tests",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!可以开始开发了。")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/reflow' 构建项目")
		fmt.Println("  2. 运行 './reflow --help' 查看帮助")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}
