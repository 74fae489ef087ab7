package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MedVisage/IVAStudioMCP/internal/di"
)

// 测试前的设置工作
func setupTest(t *testing.T) string {
	// 重置全局应用实例和容器
	instance = nil
	di.GetContainer().Clear()

	tempDir := t.TempDir()

	os.MkdirAll(filepath.Join(tempDir, "logs"), 0755)
	os.MkdirAll(filepath.Join(tempDir, "data", "ivas"), 0755)

	// 让配置系统指向测试目录
	t.Setenv("DATA_DIR", filepath.Join(tempDir, "data"))
	t.Setenv("EXPORT_DIR", filepath.Join(tempDir, "data", "exports"))
	t.Setenv("LOG_DIR", filepath.Join(tempDir, "logs"))
	t.Setenv("STATIC_DIR", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	return tempDir
}

// 测试后的清理工作
func cleanupTest() {
	instance = nil
	di.GetContainer().Clear()
}

// TestGetApp 测试获取应用实例
func TestGetApp(t *testing.T) {
	instance = nil
	defer cleanupTest()

	app1 := GetApp()
	if app1 == nil {
		t.Fatal("GetApp应该返回一个非nil的应用实例")
	}

	// 再次调用，应该返回相同的实例（单例模式）
	app2 := GetApp()
	if app1 != app2 {
		t.Fatal("GetApp应该返回相同的实例")
	}

	if app1.stopChan == nil {
		t.Fatal("应用实例的stopChan应该被初始化")
	}
}

// TestInitialize 测试应用初始化
func TestInitialize(t *testing.T) {
	tempDir := setupTest(t)
	defer cleanupTest()

	app := GetApp()
	if err := app.Initialize(); err != nil {
		t.Fatalf("初始化应用失败: %v", err)
	}

	if app.config == nil {
		t.Fatal("应用配置应该已被设置")
	}

	if app.router == nil {
		t.Fatal("应用路由应该已被设置")
	}

	// 验证配置文件已创建
	configFilePath := filepath.Join(tempDir, "data", "config.json")
	if _, err := os.Stat(configFilePath); os.IsNotExist(err) {
		t.Error("配置文件应该已被创建")
	}

	// 检查日志文件是否已创建
	files, _ := os.ReadDir(filepath.Join(tempDir, "logs"))
	if len(files) == 0 {
		t.Error("应该已创建日志文件")
	}

	// 验证关键服务已注册
	container := di.GetContainer()
	for _, name := range []string{"storage", "llm", "iva", "chat", "export", "builder", "config"} {
		if container.Get(name) == nil {
			t.Errorf("服务 %s 应该已被注册", name)
		}
	}
}

// TestInitServices 测试服务按依赖顺序注册
func TestInitServices(t *testing.T) {
	setupTest(t)
	defer cleanupTest()

	// InitServices依赖已初始化的配置
	app := GetApp()
	if err := app.Initialize(); err != nil {
		t.Fatalf("初始化应用失败: %v", err)
	}

	names := di.GetContainer().GetNames()
	if len(names) < 7 {
		t.Fatalf("应该注册至少7个服务，实际为 %d", len(names))
	}
}

// TestRunWithoutInitialize 未初始化时Run应该报错
func TestRunWithoutInitialize(t *testing.T) {
	instance = nil
	defer cleanupTest()

	app := GetApp()
	if err := app.Run(); err == nil {
		t.Fatal("未初始化时Run应该返回错误")
	}
}

// TestStopIdempotent 测试重复Stop不会panic
func TestStopIdempotent(t *testing.T) {
	instance = nil
	defer cleanupTest()

	app := GetApp()
	app.Stop()
	app.Stop()

	select {
	case <-app.stopChan:
		// 已关闭，符合预期
	default:
		t.Fatal("Stop之后stopChan应该已关闭")
	}
}
