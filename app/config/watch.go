package config

import (
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch 监听配置文件变更并热加载，授权名单等改动无需重启生效。
// onChange 在每次成功重载后收到新配置，回调内不要阻塞。
func Watch(onChange func(*Config)) {
	var mu sync.Mutex

	viper.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		var config Config
		if err := viper.Unmarshal(&config); err != nil {
			log.Printf("配置重载解码失败，保持旧配置: %v", err)
			return
		}
		if err := validateConfig(&config); err != nil {
			log.Printf("配置重载验证失败，保持旧配置: %v", err)
			return
		}
		log.Printf("配置文件已重载: %s", e.Name)
		onChange(&config)
	})
	viper.WatchConfig()
}
