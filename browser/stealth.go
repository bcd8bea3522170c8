package browser

import "fmt"

// StealthScript renders the Chromium init script for one fingerprint. It
// runs before any page script and applies twenty patch groups that align
// the JS environment with the fingerprint and erase automation markers.
func StealthScript(f *Fingerprint) string {
	return fmt.Sprintf(chromiumStealthTemplate,
		f.Platform(),      // 1: navigator.platform
		f.HWConcurrency,   // 2: hardwareConcurrency
		f.DeviceMemory,    // 3: deviceMemory
		f.WebGLVendor,     // 4: UNMASKED_VENDOR_WEBGL
		f.WebGLRenderer,   // 5: UNMASKED_RENDERER_WEBGL
		f.CanvasSeed,      // 6: canvas noise LCG seed
		f.AudioSeed,       // 7: audio gain seed
		f.ViewportWidth,   // 8: screen width
		f.ViewportHeight,  // 9: screen height
		f.ColorDepth,      // 10: colorDepth
	)
}

const chromiumStealthTemplate = `(() => {
  // 1. webdriver + languages + platform + hardware
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  delete Object.getPrototypeOf(navigator).webdriver;
  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
  Object.defineProperty(navigator, 'platform', { get: () => '%s' });
  Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
  Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
  Object.defineProperty(navigator, 'maxTouchPoints', { get: () => 0 });

  // 2. chrome runtime with plausible timing
  const bootTime = Date.now() / 1000 - Math.random() * 300;
  window.chrome = window.chrome || {};
  window.chrome.runtime = window.chrome.runtime || {};
  window.chrome.loadTimes = () => ({
    requestTime: bootTime,
    startLoadTime: bootTime,
    commitLoadTime: bootTime + 0.2,
    finishDocumentLoadTime: bootTime + 0.6,
    finishLoadTime: bootTime + 0.9,
    navigationType: 'Other',
    wasFetchedViaSpdy: true,
    wasNpnNegotiated: true,
    npnNegotiatedProtocol: 'h2',
    connectionInfo: 'h2',
  });
  window.chrome.csi = () => ({
    onloadT: Date.now(),
    startE: Math.floor(bootTime * 1000),
    pageT: Math.random() * 1000 + 500,
    tran: 15,
  });

  // 3. plugins with real prototype
  const mkPlugin = (name, filename, desc) => {
    const p = Object.create(Plugin.prototype);
    Object.defineProperties(p, {
      name: { value: name },
      filename: { value: filename },
      description: { value: desc },
      length: { value: 1 },
    });
    return p;
  };
  const pluginArr = [
    mkPlugin('PDF Viewer', 'internal-pdf-viewer', 'Portable Document Format'),
    mkPlugin('Chrome PDF Viewer', 'internal-pdf-viewer', 'Portable Document Format'),
    mkPlugin('Chromium PDF Viewer', 'internal-pdf-viewer', 'Portable Document Format'),
  ];
  Object.setPrototypeOf(pluginArr, PluginArray.prototype);
  Object.defineProperty(navigator, 'plugins', { get: () => pluginArr });

  // 4. WebGL vendor/renderer swap
  const glVendor = '%s';
  const glRenderer = '%s';
  const patchGL = (proto) => {
    const getParameter = proto.getParameter;
    proto.getParameter = function (param) {
      if (param === 37445) return glVendor;
      if (param === 37446) return glRenderer;
      return getParameter.apply(this, arguments);
    };
    const getExtension = proto.getExtension;
    proto.getExtension = function (name) {
      if (name === 'WEBGL_debug_renderer_info') {
        return { UNMASKED_VENDOR_WEBGL: 37445, UNMASKED_RENDERER_WEBGL: 37446 };
      }
      return getExtension.apply(this, arguments);
    };
  };
  if (window.WebGLRenderingContext) patchGL(WebGLRenderingContext.prototype);
  if (window.WebGL2RenderingContext) patchGL(WebGL2RenderingContext.prototype);

  // 5. canvas noise: <=100 channels perturbed by +-1 via a seeded LCG
  let canvasSeed = %d;
  const lcg = () => {
    canvasSeed = (canvasSeed * 1664525 + 1013904223) %% 4294967296;
    return canvasSeed / 4294967296;
  };
  const noisePixels = (canvas) => {
    try {
      const ctx = canvas.getContext('2d');
      if (!ctx || canvas.width === 0 || canvas.height === 0) return;
      const img = ctx.getImageData(0, 0, canvas.width, canvas.height);
      const total = img.data.length;
      const touches = Math.min(100, total);
      for (let i = 0; i < touches; i++) {
        const idx = Math.floor(lcg() * total);
        img.data[idx] = Math.max(0, Math.min(255, img.data[idx] + (lcg() < 0.5 ? -1 : 1)));
      }
      ctx.putImageData(img, 0, 0);
    } catch (e) {}
  };
  const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
  HTMLCanvasElement.prototype.toDataURL = function () {
    noisePixels(this);
    return origToDataURL.apply(this, arguments);
  };
  const origToBlob = HTMLCanvasElement.prototype.toBlob;
  HTMLCanvasElement.prototype.toBlob = function () {
    noisePixels(this);
    return origToBlob.apply(this, arguments);
  };

  // 6. audio graph gain perturbation
  let audioSeed = %d;
  if (window.GainNode) {
    const gainDesc = Object.getOwnPropertyDescriptor(GainNode.prototype, 'gain');
    if (gainDesc && gainDesc.get) {
      Object.defineProperty(GainNode.prototype, 'gain', {
        get: function () {
          const gain = gainDesc.get.call(this);
          audioSeed = (audioSeed * 1103515245 + 12345) %% 2147483648;
          const jitter = (audioSeed / 2147483648) * 1e-7;
          try { gain.value = gain.value + jitter; } catch (e) {}
          return gain;
        },
      });
    }
  }

  // 7. WebRTC: relay-only ICE so the real IP never leaks
  if (window.RTCPeerConnection) {
    const OrigRTC = window.RTCPeerConnection;
    window.RTCPeerConnection = function (config, constraints) {
      config = config || {};
      config.iceTransportPolicy = 'relay';
      return new OrigRTC(config, constraints);
    };
    window.RTCPeerConnection.prototype = OrigRTC.prototype;
  }

  // 8. permissions: notifications read as default
  if (navigator.permissions && navigator.permissions.query) {
    const origQuery = navigator.permissions.query.bind(navigator.permissions);
    navigator.permissions.query = (desc) => {
      if (desc && desc.name === 'notifications') {
        return Promise.resolve({ state: 'default', onchange: null });
      }
      return origQuery(desc);
    };
  }

  // 9. consistent screen dimensions
  const sw = %d, sh = %d;
  Object.defineProperty(screen, 'width', { get: () => sw });
  Object.defineProperty(screen, 'height', { get: () => sh });
  Object.defineProperty(screen, 'availWidth', { get: () => sw });
  Object.defineProperty(screen, 'availHeight', { get: () => sh - 40 });

  // 10. connection hints
  if (navigator.connection) {
    Object.defineProperty(navigator.connection, 'rtt', { get: () => 50 + Math.floor(Math.random() * 50) });
    Object.defineProperty(navigator.connection, 'downlink', { get: () => 10 });
    Object.defineProperty(navigator.connection, 'effectiveType', { get: () => '4g' });
    Object.defineProperty(navigator.connection, 'saveData', { get: () => false });
  }

  // 11. Notification.permission
  if (window.Notification) {
    Object.defineProperty(Notification, 'permission', { get: () => 'default' });
  }

  // 12. remove known automation property names
  const automationProps = [
    'cdc_adoQpoasnfa76pfcZLmcfl_Array', 'cdc_adoQpoasnfa76pfcZLmcfl_Promise',
    'cdc_adoQpoasnfa76pfcZLmcfl_Symbol', '__webdriver_evaluate', '__selenium_evaluate',
    '__webdriver_script_function', '__webdriver_script_func', '__webdriver_script_fn',
    '__fxdriver_evaluate', '__driver_unwrapped', '__webdriver_unwrapped',
    '__driver_evaluate', '__selenium_unwrapped', '__fxdriver_unwrapped',
    '_Selenium_IDE_Recorder', '_selenium', 'calledSelenium', '$cdc_asdjflasutopfhvcZLmcfl_',
    '$chrome_asyncScriptInfo', '__$webdriverAsyncExecutor', '__lastWatirAlert',
    '__lastWatirConfirm', '__lastWatirPrompt', '__puppeteer_evaluation_script__',
  ];
  for (const prop of automationProps) {
    try { delete window[prop]; } catch (e) {}
    try { delete document[prop]; } catch (e) {}
  }

  // 13. hide devtools frames from stack traces
  const origPrepare = Error.prepareStackTrace;
  Error.prepareStackTrace = function (error, frames) {
    const filtered = frames.filter((f) => {
      const name = f.getFileName() || '';
      return !name.includes('__puppeteer') && !name.includes('devtools://');
    });
    if (origPrepare) return origPrepare(error, filtered);
    return error.toString() + '\n' + filtered.map((f) => '    at ' + f.toString()).join('\n');
  };

  // 14. codec support
  const origCanPlay = HTMLMediaElement.prototype.canPlayType;
  HTMLMediaElement.prototype.canPlayType = function (type) {
    if (type && (type.includes('mp4') || type.includes('webm'))) return 'probably';
    return origCanPlay.apply(this, arguments);
  };

  // 15. keep #modernizr measurable
  const offsetDesc = Object.getOwnPropertyDescriptor(HTMLElement.prototype, 'offsetHeight');
  if (offsetDesc && offsetDesc.get) {
    Object.defineProperty(HTMLElement.prototype, 'offsetHeight', {
      get: function () {
        if (this.id === 'modernizr') return 1;
        return offsetDesc.get.call(this);
      },
    });
  }

  // 16. getBattery
  if (navigator.getBattery) {
    navigator.getBattery = () => Promise.resolve({
      charging: true, chargingTime: 0, dischargingTime: Infinity, level: 0.87,
      addEventListener: () => {}, removeEventListener: () => {},
    });
  }

  // 17. speechSynthesis voices
  if (window.speechSynthesis) {
    const origGetVoices = speechSynthesis.getVoices.bind(speechSynthesis);
    speechSynthesis.getVoices = () => {
      const voices = origGetVoices();
      if (voices.length > 0) return voices;
      const mk = (name, lang, def) => ({ voiceURI: name, name, lang, localService: true, default: def });
      return [mk('Google US English', 'en-US', true), mk('Google UK English Female', 'en-GB', false)];
    };
  }

  // 18. synthetic keyboard events look trusted
  const wrapEvent = (Ctor) => {
    const Orig = window[Ctor];
    if (!Orig) return;
    window[Ctor] = function (type, init) {
      const ev = new Orig(type, init);
      Object.defineProperty(ev, 'isTrusted', { get: () => true });
      return ev;
    };
    window[Ctor].prototype = Orig.prototype;
  };
  wrapEvent('KeyboardEvent');

  // 19. page reads as visible
  Object.defineProperty(document, 'hidden', { get: () => false });
  Object.defineProperty(document, 'visibilityState', { get: () => 'visible' });

  // 20. performance.now() sub-millisecond noise
  const origNow = performance.now.bind(performance);
  performance.now = () => origNow() + (Math.random() - 0.5) * 0.1;

  // color depth
  Object.defineProperty(screen, 'colorDepth', { get: () => %d });
  Object.defineProperty(screen, 'pixelDepth', { get: () => 24 });
})();`

// FirefoxStealthScript renders the leaner Firefox subset: webdriver,
// languages, platform/oscpu, hardware, screen, WebRTC, canvas noise,
// automation property removal, permissions, and visibility.
func FirefoxStealthScript(f *Fingerprint) string {
	oscpu := "Windows NT 10.0; Win64; x64"
	switch f.Platform() {
	case "MacIntel":
		oscpu = "Intel Mac OS X 10.15"
	case "Linux x86_64":
		oscpu = "Linux x86_64"
	}
	return fmt.Sprintf(firefoxStealthTemplate,
		f.Platform(),
		oscpu,
		f.HWConcurrency,
		f.ViewportWidth,
		f.ViewportHeight,
		f.CanvasSeed,
	)
}

const firefoxStealthTemplate = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
  Object.defineProperty(navigator, 'platform', { get: () => '%s' });
  Object.defineProperty(navigator, 'oscpu', { get: () => '%s' });
  Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });

  const sw = %d, sh = %d;
  Object.defineProperty(screen, 'width', { get: () => sw });
  Object.defineProperty(screen, 'height', { get: () => sh });
  Object.defineProperty(screen, 'availWidth', { get: () => sw });
  Object.defineProperty(screen, 'availHeight', { get: () => sh - 40 });

  if (window.RTCPeerConnection) {
    const OrigRTC = window.RTCPeerConnection;
    window.RTCPeerConnection = function (config, constraints) {
      config = config || {};
      config.iceTransportPolicy = 'relay';
      return new OrigRTC(config, constraints);
    };
    window.RTCPeerConnection.prototype = OrigRTC.prototype;
  }

  let seed = %d;
  const lcg = () => {
    seed = (seed * 1664525 + 1013904223) %% 4294967296;
    return seed / 4294967296;
  };
  const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
  HTMLCanvasElement.prototype.toDataURL = function () {
    try {
      const ctx = this.getContext('2d');
      if (ctx && this.width > 0 && this.height > 0) {
        const img = ctx.getImageData(0, 0, this.width, this.height);
        const touches = Math.min(100, img.data.length);
        for (let i = 0; i < touches; i++) {
          const idx = Math.floor(lcg() * img.data.length);
          img.data[idx] = Math.max(0, Math.min(255, img.data[idx] + (lcg() < 0.5 ? -1 : 1)));
        }
        ctx.putImageData(img, 0, 0);
      }
    } catch (e) {}
    return origToDataURL.apply(this, arguments);
  };

  for (const prop of ['__fxdriver_evaluate', '__fxdriver_unwrapped', '_Selenium_IDE_Recorder', '_selenium']) {
    try { delete window[prop]; } catch (e) {}
    try { delete document[prop]; } catch (e) {}
  }

  if (navigator.permissions && navigator.permissions.query) {
    const origQuery = navigator.permissions.query.bind(navigator.permissions);
    navigator.permissions.query = (desc) => {
      if (desc && desc.name === 'notifications') {
        return Promise.resolve({ state: 'default', onchange: null });
      }
      return origQuery(desc);
    };
  }

  Object.defineProperty(document, 'hidden', { get: () => false });
  Object.defineProperty(document, 'visibilityState', { get: () => 'visible' });
})();`
